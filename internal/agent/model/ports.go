package model

import (
	"context"

	errx "github.com/finbuddy-intake-core/server/internal/core/error"
)

// ErrProfileNotFound is returned by ProfileStore when the user has no profile.
var ErrProfileNotFound = errx.ErrProfileNotFound

type SessionRepository interface {
	// Load returns the stored state for a session; found is false for a new session.
	Load(ctx context.Context, sessionID string) (state *ConversationState, found bool, err error)

	// Save replaces the stored state for state.SessionID in one write.
	Save(ctx context.Context, state *ConversationState) error
}

type ProfileStore interface {
	// FetchProfile returns the profile, financial summary and quotes for a user,
	// or an error wrapping ErrProfileNotFound.
	FetchProfile(ctx context.Context, userID string) (*ProfileBundle, error)
}

type IntakeSink interface {
	// SaveIntakeRecord persists the collected intake as a durable record.
	SaveIntakeRecord(ctx context.Context, userID string, info PartialInfo, purchaseAmount *float64) error
}

type AnalysisSink interface {
	// SaveAnalysis persists a completed analysis for a user.
	SaveAnalysis(ctx context.Context, userID string, result *AnalysisResult) error
}

type Notifier interface {
	// Notify publishes a session event. Delivery is best-effort.
	Notify(ctx context.Context, event Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
