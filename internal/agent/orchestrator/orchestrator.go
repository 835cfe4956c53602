// Package orchestrator runs one conversational turn per call: it serialises
// turns per session, executes the turn graph against a working copy of the
// stored state and commits the result before anything is streamed back.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/finbuddy-intake-core/server/internal/agent/collection"
	"github.com/finbuddy-intake-core/server/internal/agent/graph"
	"github.com/finbuddy-intake-core/server/internal/agent/metrics"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	"github.com/finbuddy-intake-core/server/internal/agent/repo"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

const (
	defaultLockWait = 30 * time.Second
	// commitTimeout bounds the save and notifications once the graph has
	// finished, independent of the caller's context.
	commitTimeout = 10 * time.Second
)

type Option func(*Orchestrator)

// WithNotifier publishes session events after each committed turn.
func WithNotifier(n model.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithLockWait bounds how long a turn waits for the session lock.
func WithLockWait(d time.Duration) Option {
	return func(o *Orchestrator) { o.lockWait = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides the generator used for empty session ids.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

type Orchestrator struct {
	runner   graph.Runner
	sessions model.SessionRepository
	locker   repo.SessionLocker
	notifier model.Notifier
	lockWait time.Duration
	now      func() time.Time
	newID    func() string
}

func New(runner graph.Runner, sessions model.SessionRepository, locker repo.SessionLocker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:   runner,
		sessions: sessions,
		locker:   locker,
		notifier: model.NopNotifier{},
		lockWait: defaultLockWait,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.locker == nil {
		o.locker = repo.NewLocalSessionLocker()
	}
	return o
}

// Stream acquires the session lock, loads the session and starts the turn.
// Errors before the turn starts are returned directly and no item is
// produced. Every later failure is reported as a natural-language item.
func (o *Orchestrator) Stream(ctx context.Context, in model.TurnInput) (*schema.StreamReader[*model.StepOutput], error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		in.SessionID = o.newID()
	}

	lockCtx, cancel := context.WithTimeout(ctx, o.lockWait)
	defer cancel()
	started := time.Now()
	release, err := o.locker.Acquire(lockCtx, in.SessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", in.SessionID).Msg("Failed to acquire session lock")
		return nil, fmt.Errorf("acquire session %s: %w", in.SessionID, err)
	}
	metrics.RecordLockWait(time.Since(started))

	stored, found, err := o.sessions.Load(ctx, in.SessionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("load session %s: %w", in.SessionID, err)
	}
	if !found {
		stored = model.NewConversationState(in.SessionID, o.now().UTC())
		logx.Info().Str("session_id", in.SessionID).Msg("New session")
	}

	sr, sw := schema.Pipe[*model.StepOutput](1)
	go func() {
		defer release()
		defer sw.Close()
		defer func() {
			if r := recover(); r != nil {
				logx.Error().Interface("panic", r).Str("session_id", in.SessionID).Msg("Turn panicked")
				sw.Send(apology(stored), nil)
			}
		}()
		out := o.turn(ctx, in, stored)
		// The turn is committed by now; a closed reader only drops the item.
		sw.Send(out, nil)
	}()
	return sr, nil
}

// Invoke runs one turn and collects every streamed item.
func (o *Orchestrator) Invoke(ctx context.Context, in model.TurnInput) ([]*model.StepOutput, error) {
	sr, err := o.Stream(ctx, in)
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	var items []*model.StepOutput
	for {
		item, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}

func (o *Orchestrator) turn(ctx context.Context, in model.TurnInput, stored *model.ConversationState) *model.StepOutput {
	started := time.Now()
	log := logx.Component("orchestrator")
	working := stored.Clone()

	out, err := o.runner.Invoke(ctx, in, working)
	if err != nil {
		log.Error().Err(err).Int("status", errx.StatusOf(err)).Str("session_id", in.SessionID).Str("phase", string(stored.Phase)).Msg("Turn failed, nothing committed")
		metrics.RecordTurn(string(model.AgentCollection), time.Since(started), "error")
		return apology(stored)
	}

	var events []model.Event
	if working.UserConfirmed {
		// Confirmation is consumed once per turn.
		working.UserConfirmed = false
		confirmed := true
		out.Confirmed = &confirmed
		if out.RedirectTo == "" {
			out.RedirectTo = model.RedirectAnalysing
		}
		events = append(events, o.event(model.EventRedirect, working, model.RedirectAnalysing))
	}
	if out.Analysis != nil {
		events = append(events,
			o.event(model.EventRedirect, working, model.RedirectRecommendation),
			o.event(model.EventAnalysisReady, working, ""))
	}
	if working.Phase != stored.Phase {
		events = append(events, o.event(model.EventPhaseChanged, working, ""))
	}

	working.Turns++
	working.UpdatedAt = o.now().UTC()
	if working.CreatedAt.IsZero() {
		working.CreatedAt = working.UpdatedAt
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := o.sessions.Save(commitCtx, working); err != nil {
		log.Error().Err(err).Int("status", errx.StatusOf(err)).Str("session_id", in.SessionID).Msg("Failed to save session, turn discarded")
		metrics.RecordTurn(string(out.Agent), time.Since(started), "save_failed")
		return apology(stored)
	}

	if working.Phase != stored.Phase {
		metrics.RecordPhaseTransition(string(stored.Phase), string(working.Phase))
	}
	for _, ev := range events {
		if err := o.notifier.Notify(commitCtx, ev); err != nil {
			log.Warn().Err(err).Str("session_id", in.SessionID).Str("event", string(ev.Type)).Msg("Failed to publish session event")
		}
	}
	metrics.RecordTurn(string(out.Agent), time.Since(started), "ok")

	out.SessionID = working.SessionID
	out.Phase = working.Phase
	log.Info().
		Str("session_id", in.SessionID).
		Str("agent", string(out.Agent)).
		Str("from_phase", string(stored.Phase)).
		Str("phase", string(working.Phase)).
		Int("turns", working.Turns).
		Dur("duration", time.Since(started)).
		Msg("Turn committed")
	return out
}

func (o *Orchestrator) event(t model.EventType, s *model.ConversationState, redirect string) model.Event {
	return model.Event{
		Type:       t,
		SessionID:  s.SessionID,
		UserID:     s.UserID,
		Phase:      s.Phase,
		RedirectTo: redirect,
	}
}

// apology reports a failed turn against the committed state.
func apology(stored *model.ConversationState) *model.StepOutput {
	return model.NewStepOutput(model.AgentCollection, collection.ApologyReply, stored)
}
