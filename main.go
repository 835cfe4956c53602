package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/finbuddy-intake-core/server/internal/agent/graph"
	"github.com/finbuddy-intake-core/server/internal/agent/metrics"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	"github.com/finbuddy-intake-core/server/internal/agent/orchestrator"
	"github.com/finbuddy-intake-core/server/internal/agent/repo"
	"github.com/finbuddy-intake-core/server/internal/core"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	"github.com/finbuddy-intake-core/server/internal/store"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
	pkgredis "github.com/finbuddy-intake-core/server/pkg/redis"
)

const memorySweepInterval = time.Minute

// AppConfig defines all configurable parameters for the intake service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Infrastructure
	Redis    pkgredis.Config
	Session  model.SessionConfig
	Database model.DatabaseConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Conversation model.ConversationModelConfig
	Extraction   model.ExtractionModelConfig
	LLM          model.LLMConfig
	Analysis     model.AnalysisConfig

	// Demo
	DemoUserID string `envconfig:"DEMO_USER_ID" default:"demo-user"`
	DemoSeed   bool   `envconfig:"DEMO_SEED" default:"true"`
}

func main() {
	// Load .env file
	envErr := godotenv.Load(".env")

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to process environment config: %v\n", err)
		os.Exit(1)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment), Level: cfg.LogLevel})
	if envErr != nil {
		logx.Debug().Err(envErr).Msg("No .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("Intake service stopped")
	}
}

func run(ctx context.Context, cfg AppConfig) error {
	metrics.Init()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if cfg.DemoSeed {
		if err := db.SeedProfile(ctx, demoProfile(cfg.DemoUserID)); err != nil {
			return fmt.Errorf("seed demo profile: %w", err)
		}
	}

	sessions, locker, notifier, closeRedis, err := sessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRedis()

	runner, err := graph.BuildTurnGraph(ctx, graph.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		ConversationModel: cfg.Conversation,
		ExtractionModel:   cfg.Extraction,
		LLM:               cfg.LLM,
		Analysis:          cfg.Analysis,
		MaxPromptMessages: cfg.Session.MaxPromptMessages,
		Profiles:          db,
		Intake:            db,
		Analyses:          db,
	})
	if err != nil {
		return fmt.Errorf("build turn graph: %w", err)
	}

	orch := orchestrator.New(runner, sessions, locker,
		orchestrator.WithNotifier(notifier),
		orchestrator.WithLockWait(cfg.Session.LockWait),
	)

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logx.Info().
		Str("session_backend", cfg.Session.Backend).
		Str("database", cfg.Database.Driver).
		Str("metrics_addr", cfg.MetricsAddr).
		Msg("Intake service ready")

	return converse(ctx, orch, db, cfg.DemoUserID)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// sessionBackend picks the session store, locker and notifier for the
// configured backend.
func sessionBackend(ctx context.Context, cfg AppConfig) (model.SessionRepository, repo.SessionLocker, model.Notifier, func(), error) {
	switch cfg.Session.Backend {
	case "memory":
		mem := repo.NewMemorySessionRepository(cfg.Session.TTL)
		go mem.RunJanitor(ctx, memorySweepInterval)
		return mem, repo.NewLocalSessionLocker(), model.NopNotifier{}, func() {}, nil
	case "redis", "":
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		logx.Debug().Msg("Connected to Redis successfully")
		return repo.NewRedisSessionRepository(rdb, cfg.Session.TTL),
			repo.NewRedisSessionLocker(rdb, cfg.Session.LockTTL),
			repo.NewRedisNotifier(rdb),
			closer(rdb), nil
	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.Session.Backend)
	}
}

func closer(rdb *redis.Client) func() {
	return func() {
		if err := rdb.Close(); err != nil {
			logx.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

// converse runs an interactive terminal conversation against one session.
func converse(ctx context.Context, orch *orchestrator.Orchestrator, db *store.SQLStore, userID string) error {
	in := bufio.NewScanner(os.Stdin)
	sessionID := ""
	fmt.Println("FinBuddy intake. Type your message, /records for stored results, or /quit to exit.")

	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		text := strings.TrimSpace(in.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/records":
			if err := printRecords(ctx, db, userID); err != nil {
				logx.Error().Err(err).Int("status", errx.StatusOf(err)).Msg("Failed to read stored records")
			}
			continue
		}

		items, err := orch.Invoke(ctx, model.TurnInput{SessionID: sessionID, UserID: userID, Utterance: text})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logx.Error().Err(err).Int("status", errx.StatusOf(err)).Msg("Turn rejected")
			continue
		}
		for _, item := range items {
			sessionID = item.SessionID
			fmt.Printf("[%s|%s] %s\n", item.Agent, item.Phase, item.Reply)
			if item.RedirectTo != "" {
				fmt.Printf("  -> redirect %s\n", item.RedirectTo)
			}
		}
	}
}

// printRecords shows what the intake persisted for the user.
func printRecords(ctx context.Context, db *store.SQLStore, userID string) error {
	records, err := db.IntakeRecords(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Printf("%d intake record(s) for %s\n", len(records), userID)
	for i, rec := range records {
		fmt.Printf("  %d. income=%q expenses=%q dependents=%q\n", i+1, rec.Income, rec.UpcomingExpenses, rec.Dependents)
	}

	latest, err := db.LatestAnalysis(ctx, userID)
	if err != nil {
		return err
	}
	if latest == nil {
		fmt.Println("No analysis stored yet.")
		return nil
	}
	fmt.Printf("Latest analysis %s: %d scenario(s)\n", latest.GeneratedAt.Format(time.RFC3339), len(latest.Scenarios))
	for _, rec := range latest.Recommendations {
		fmt.Printf("  #%d %s\n", rec.Rank, rec.Scenario)
	}
	return nil
}

func demoProfile(userID string) *model.ProfileBundle {
	dob := time.Date(1991, time.August, 22, 0, 0, 0, 0, time.UTC)
	score, loans := 748, 1
	income, balance, bank, investments := 120000.0, 150000.0, 900000.0, 250000.0
	return &model.ProfileBundle{
		Profile: model.Profile{
			UserID:      userID,
			FullName:    "Demo User",
			Email:       "demo@finbuddy.local",
			DateOfBirth: &dob,
			Occupation:  "Product manager",
		},
		Financials: model.FinancialSummary{
			CreditScoreName:  "CIBIL",
			CreditScore:      &score,
			MonthlyIncome:    &income,
			ActiveLoansCount: &loans,
			LoansBalance:     &balance,
			BankBalance:      &bank,
			Investments:      &investments,
		},
		Quotes: []model.Quote{
			{LenderName: "HDFC Bank", Amount: 600000, TenureMonths: 60, InterestRate: 8.9, MonthlyPayment: 12426},
			{LenderName: "ICICI Bank", Amount: 700000, TenureMonths: 48, InterestRate: 9.6, MonthlyPayment: 17596},
		},
	}
}
