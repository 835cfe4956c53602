// Package store provides the SQL-backed profile store and intake/analysis
// sink. SQLite and PostgreSQL share one implementation; queries are written
// with ? placeholders and rebound for postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/finbuddy-intake-core/server/internal/agent/metrics"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	dateLayout = "2006-01-02"
	// DefaultDirPermissions is used when creating the sqlite database directory.
	DefaultDirPermissions = 0o755
	// DefaultConnMaxLifetime is the maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations/sqlite.sql
var sqliteMigrations string

//go:embed migrations/postgres.sql
var postgresMigrations string

// SQLStore implements model.ProfileStore, model.IntakeSink and model.AnalysisSink.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg model.DatabaseConfig) (*SQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	var (
		db         *sql.DB
		err        error
		migrations string
	)
	switch cfg.Driver {
	case DriverSQLite, "sqlite3", "":
		if dir := filepath.Dir(cfg.DSN); dir != "." && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err == nil {
			// One writer avoids SQLITE_BUSY under concurrent turns.
			db.SetMaxOpenConns(1)
		}
		cfg.Driver, migrations = DriverSQLite, sqliteMigrations
	case DriverPostgres:
		db, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			if cfg.MaxOpenConns > 0 {
				db.SetMaxOpenConns(cfg.MaxOpenConns)
				db.SetMaxIdleConns(cfg.MaxOpenConns)
			}
			db.SetConnMaxLifetime(DefaultConnMaxLifetime)
		}
		migrations = postgresMigrations
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logx.Error().Err(err).Str("driver", cfg.Driver).Msg("Database ping failed")
		return nil, errx.WrapDB(err)
	}
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		logx.Error().Err(err).Str("driver", cfg.Driver).Msg("Failed to run migrations")
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logx.Debug().Str("driver", cfg.Driver).Msg("Database migrations applied")

	return &SQLStore{db: db, driver: cfg.Driver, now: time.Now}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) observe(op string, started time.Time, err error) {
	metrics.RecordDBQuery(op, time.Since(started), err)
}

// FetchProfile loads the profile, financial summary and quotes for a user.
func (s *SQLStore) FetchProfile(ctx context.Context, userID string) (bundle *model.ProfileBundle, err error) {
	started := time.Now()
	defer func() { s.observe("fetch_profile", started, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, errx.WrapDB(fmt.Errorf("empty user id: %w", model.ErrProfileNotFound))
	}

	var name, email, dob, occupation sql.NullString
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT full_name, email, date_of_birth, occupation FROM users WHERE id = ?`), userID).
		Scan(&name, &email, &dob, &occupation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errx.WrapDB(fmt.Errorf("user %s: %w", userID, model.ErrProfileNotFound))
	}
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("Failed to load user profile")
		return nil, errx.WrapDB(err)
	}

	bundle = &model.ProfileBundle{
		Profile: model.Profile{
			UserID:     userID,
			FullName:   name.String,
			Email:      email.String,
			Occupation: occupation.String,
		},
		Quotes: []model.Quote{},
	}
	if dob.Valid && dob.String != "" {
		if t, perr := time.Parse(dateLayout, dob.String); perr == nil {
			bundle.Profile.DateOfBirth = &t
		} else {
			logx.Warn().Err(perr).Str("user_id", userID).Msg("Ignoring malformed date of birth")
		}
	}

	if bundle.Financials, err = s.fetchFinancials(ctx, userID); err != nil {
		return nil, err
	}
	if bundle.Quotes, err = s.fetchQuotes(ctx, userID); err != nil {
		return nil, err
	}
	return bundle, nil
}

func (s *SQLStore) fetchFinancials(ctx context.Context, userID string) (model.FinancialSummary, error) {
	var (
		scoreName                                  sql.NullString
		score, activeLoans                         sql.NullInt64
		income, balance, pastDue, bank, investment sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT credit_score_name, credit_score, total_income, active_loans_count,
		       loans_balance, loans_past_due_amount, bank_balance, investments
		FROM user_financials WHERE user_id = ?`), userID).
		Scan(&scoreName, &score, &income, &activeLoans, &balance, &pastDue, &bank, &investment)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FinancialSummary{}, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("Failed to load user financials")
		return model.FinancialSummary{}, errx.WrapDB(err)
	}
	return model.FinancialSummary{
		CreditScoreName:  scoreName.String,
		CreditScore:      nullInt(score),
		MonthlyIncome:    nullFloat(income),
		ActiveLoansCount: nullInt(activeLoans),
		LoansBalance:     nullFloat(balance),
		LoansPastDue:     nullFloat(pastDue),
		BankBalance:      nullFloat(bank),
		Investments:      nullFloat(investment),
	}, nil
}

func (s *SQLStore) fetchQuotes(ctx context.Context, userID string) ([]model.Quote, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT bank_name, amount, tenure, interest_rate, emi
		FROM bank_quotes WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("Failed to query bank quotes")
		return nil, errx.WrapDB(err)
	}
	defer rows.Close()

	quotes := []model.Quote{}
	for rows.Next() {
		var q model.Quote
		if err := rows.Scan(&q.LenderName, &q.Amount, &q.TenureMonths, &q.InterestRate, &q.MonthlyPayment); err != nil {
			return nil, errx.WrapDB(fmt.Errorf("scan bank quote: %w", err))
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapDB(fmt.Errorf("iterate bank quotes: %w", err))
	}
	return quotes, nil
}

// SaveIntakeRecord stores the collected intake as a user_chat_info row.
func (s *SQLStore) SaveIntakeRecord(ctx context.Context, userID string, info model.PartialInfo, purchaseAmount *float64) (err error) {
	started := time.Now()
	defer func() { s.observe("save_intake", started, err) }()

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_chat_info
			(user_id, income_details, upcoming_spends, dependents_info, additional_info, purchase_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		userID, nullString(info.Income), nullString(info.UpcomingExpenses), nullString(info.Dependents),
		nullString(info.Additional), purchaseAmount, s.timestamp())
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("Failed to save intake record")
		return errx.WrapDB(err)
	}
	return nil
}

// SaveAnalysis stores the analysis result as JSON.
func (s *SQLStore) SaveAnalysis(ctx context.Context, userID string, result *model.AnalysisResult) (err error) {
	started := time.Now()
	defer func() { s.observe("save_analysis", started, err) }()

	if result == nil {
		return fmt.Errorf("save analysis: nil result")
	}
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO financial_analysis (user_id, analysis, created_at) VALUES (?, ?, ?)`),
		userID, string(b), s.timestamp())
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("Failed to save analysis")
		return errx.WrapDB(err)
	}
	return nil
}

// LatestAnalysis returns the most recent stored analysis for a user, or nil.
func (s *SQLStore) LatestAnalysis(ctx context.Context, userID string) (*model.AnalysisResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT analysis FROM financial_analysis WHERE user_id = ? ORDER BY id DESC LIMIT 1`), userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	var res model.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return &res, nil
}

// IntakeRecords returns the stored intake rows for a user, oldest first.
func (s *SQLStore) IntakeRecords(ctx context.Context, userID string) ([]model.PartialInfo, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT income_details, upcoming_spends, dependents_info, additional_info
		FROM user_chat_info WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, errx.WrapDB(err)
	}
	defer rows.Close()

	var out []model.PartialInfo
	for rows.Next() {
		var income, expenses, dependents, additional sql.NullString
		if err := rows.Scan(&income, &expenses, &dependents, &additional); err != nil {
			return nil, errx.WrapDB(err)
		}
		out = append(out, model.PartialInfo{
			Income:           income.String,
			UpcomingExpenses: expenses.String,
			Dependents:       dependents.String,
			Additional:       additional.String,
		})
	}
	return out, rows.Err()
}

// SeedProfile upserts a user with financials and replaces their quotes.
func (s *SQLStore) SeedProfile(ctx context.Context, b *model.ProfileBundle) (err error) {
	started := time.Now()
	defer func() { s.observe("seed_profile", started, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapDB(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var dob any
	if b.Profile.DateOfBirth != nil {
		dob = b.Profile.DateOfBirth.Format(dateLayout)
	}
	p := b.Profile
	if _, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, full_name, email, date_of_birth, occupation) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name = excluded.full_name, email = excluded.email,
			date_of_birth = excluded.date_of_birth, occupation = excluded.occupation`),
		p.UserID, nullString(p.FullName), nullString(p.Email), dob, nullString(p.Occupation)); err != nil {
		return errx.WrapDB(fmt.Errorf("upsert user: %w", err))
	}

	f := b.Financials
	if _, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO user_financials
			(user_id, credit_score_name, credit_score, total_income, active_loans_count,
			 loans_balance, loans_past_due_amount, bank_balance, investments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			credit_score_name = excluded.credit_score_name, credit_score = excluded.credit_score,
			total_income = excluded.total_income, active_loans_count = excluded.active_loans_count,
			loans_balance = excluded.loans_balance, loans_past_due_amount = excluded.loans_past_due_amount,
			bank_balance = excluded.bank_balance, investments = excluded.investments`),
		p.UserID, nullString(f.CreditScoreName), f.CreditScore, f.MonthlyIncome, f.ActiveLoansCount,
		f.LoansBalance, f.LoansPastDue, f.BankBalance, f.Investments); err != nil {
		return errx.WrapDB(fmt.Errorf("upsert financials: %w", err))
	}

	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM bank_quotes WHERE user_id = ?`), p.UserID); err != nil {
		return errx.WrapDB(fmt.Errorf("clear quotes: %w", err))
	}
	for _, q := range b.Quotes {
		if _, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO bank_quotes (user_id, bank_name, amount, tenure, interest_rate, emi)
			VALUES (?, ?, ?, ?, ?, ?)`),
			p.UserID, q.LenderName, q.Amount, q.TenureMonths, q.InterestRate, q.MonthlyPayment); err != nil {
			return errx.WrapDB(fmt.Errorf("insert quote: %w", err))
		}
	}

	if err = tx.Commit(); err != nil {
		return errx.WrapDB(err)
	}
	return nil
}

func (s *SQLStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

var (
	_ model.ProfileStore = (*SQLStore)(nil)
	_ model.IntakeSink   = (*SQLStore)(nil)
	_ model.AnalysisSink = (*SQLStore)(nil)
)
