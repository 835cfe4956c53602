package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

// ProfileStore serves bundles from memory. Delay simulates a slow store and
// honours context cancellation.
type ProfileStore struct {
	mu      sync.Mutex
	Bundles map[string]*model.ProfileBundle
	Delay   time.Duration
	Err     error
	calls   int
}

func (s *ProfileStore) FetchProfile(ctx context.Context, userID string) (*model.ProfileBundle, error) {
	s.mu.Lock()
	s.calls++
	delay, ferr := s.Delay, s.Err
	b, ok := s.Bundles[userID]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ferr != nil {
		return nil, ferr
	}
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrProfileNotFound)
	}
	return b, nil
}

func (s *ProfileStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// IntakeCall records one SaveIntakeRecord invocation.
type IntakeCall struct {
	UserID         string
	Info           model.PartialInfo
	PurchaseAmount *float64
}

// Sink records persistence calls and can be told to fail.
type Sink struct {
	mu          sync.Mutex
	Intakes     []IntakeCall
	Analyses    []*model.AnalysisResult
	IntakeErr   error
	AnalysisErr error
}

func (s *Sink) SaveIntakeRecord(_ context.Context, userID string, info model.PartialInfo, amount *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IntakeErr != nil {
		return s.IntakeErr
	}
	s.Intakes = append(s.Intakes, IntakeCall{UserID: userID, Info: info, PurchaseAmount: amount})
	return nil
}

func (s *Sink) SaveAnalysis(_ context.Context, _ string, result *model.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AnalysisErr != nil {
		return s.AnalysisErr
	}
	s.Analyses = append(s.Analyses, result)
	return nil
}

func (s *Sink) IntakeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Intakes)
}

// Notifier records published events.
type Notifier struct {
	mu     sync.Mutex
	Events []model.Event
}

func (n *Notifier) Notify(_ context.Context, e model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, e)
	return nil
}

func (n *Notifier) Snapshot() []model.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Event(nil), n.Events...)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Bundle builds a realistic profile bundle for tests.
func Bundle(userID string) *model.ProfileBundle {
	dob := time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC)
	return &model.ProfileBundle{
		Profile: model.Profile{
			UserID:      userID,
			FullName:    "Asha Rao",
			Email:       "asha@example.com",
			DateOfBirth: &dob,
			Occupation:  "Software engineer",
		},
		Financials: model.FinancialSummary{
			CreditScoreName:  "CIBIL",
			CreditScore:      Ptr(762),
			MonthlyIncome:    Ptr(150000.0),
			ActiveLoansCount: Ptr(1),
			LoansBalance:     Ptr(200000.0),
			BankBalance:      Ptr(1200000.0),
			Investments:      Ptr(300000.0),
		},
		Quotes: []model.Quote{
			{LenderName: "Bank A", Amount: 700000, TenureMonths: 60, InterestRate: 9.0},
			{LenderName: "Bank B", Amount: 800000, TenureMonths: 48, InterestRate: 10.5},
		},
	}
}
