// Package analysis implements the analysis agent. It fetches the user's
// external profile, computes financing scenarios and hands the conversation
// over to discussion.
package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// User-facing replies for failure paths.
const (
	ReplyNotConfirmed    = "Before I analyze your loan options, please confirm that the details I collected are correct."
	ReplyProfileNotFound = "I couldn't find your profile, so I can't run the analysis yet. Please check that you're signed in with the right account, then ask me to try again."
	ReplyProfileTimeout  = "Fetching your financial profile is taking longer than expected. Please ask me to try again in a moment."
	ReplyProfileFailed   = "I couldn't load your financial profile right now. Please ask me to try again in a moment."
	DegradedNote         = "(Note: I couldn't save your details just now, but your analysis is complete.)"
)

// Outcome reports what Analyze did.
type Outcome struct {
	Reply    string
	Result   *model.AnalysisResult
	Refused  bool
	Failed   bool
	Degraded bool
	Usage    *schema.TokenUsage
}

type Option func(*Agent)

// WithAnalysisSink stores every completed analysis.
func WithAnalysisSink(sink model.AnalysisSink) Option {
	return func(a *Agent) { a.analyses = sink }
}

// WithSummaryModel lets the conversation model write the human summary.
func WithSummaryModel(cm einomodel.BaseChatModel) Option {
	return func(a *Agent) { a.chatModel = cm }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

type Agent struct {
	profiles  model.ProfileStore
	intake    model.IntakeSink
	analyses  model.AnalysisSink
	chatModel einomodel.BaseChatModel
	cfg       model.AnalysisConfig
	now       func() time.Time
}

func New(profiles model.ProfileStore, intake model.IntakeSink, cfg model.AnalysisConfig, opts ...Option) *Agent {
	a := &Agent{
		profiles: profiles,
		intake:   intake,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the analysis for a confirmed session. Failures are reported to
// the user through Outcome.Reply; Analyze itself never returns an error.
func (a *Agent) Analyze(ctx context.Context, s *model.ConversationState, userID string) Outcome {
	if !s.UserConfirmed || s.Phase != model.PhaseConfirming {
		return Outcome{Reply: ReplyNotConfirmed, Refused: true}
	}
	if err := s.TransitionTo(model.PhaseAnalyzing); err != nil {
		return Outcome{Reply: ReplyNotConfirmed, Refused: true}
	}
	log := logx.Component("analysis")

	bundle, err := a.fetch(ctx, userID)
	if err != nil {
		reply, cause := ReplyProfileFailed, "profile fetch failed"
		switch {
		case errors.Is(err, model.ErrProfileNotFound):
			reply, cause = ReplyProfileNotFound, "profile not found"
		case errors.Is(err, context.DeadlineExceeded):
			reply, cause = ReplyProfileTimeout, "profile fetch timed out"
		}
		log.Warn().Err(err).Str("session_id", s.SessionID).Str("user_id", userID).Msg("Analysis aborted")
		_ = s.TransitionTo(model.PhaseError)
		s.LastError = cause
		s.Append(model.RoleAssistant, reply)
		return Outcome{Reply: reply, Failed: true}
	}

	res := Compute(Input{
		Bundle:         bundle,
		Info:           s.CollectedInfo,
		PurchaseAmount: s.PurchaseAmount,
		Now:            a.now().UTC(),
	}, a.cfg)

	out := Outcome{Result: res}
	res.HumanSummary, out.Usage = a.summarize(ctx, res, s.CollectedInfo, bundle.Financials)

	s.AnalysisResult = res
	if err := s.TransitionTo(model.PhaseDiscussing); err != nil {
		log.Error().Err(err).Str("session_id", s.SessionID).Msg("Unexpected phase after analysis")
	}

	out.Degraded = a.persist(ctx, s, userID, res)
	out.Reply = res.HumanSummary
	if out.Degraded {
		out.Reply = out.Reply + "\n\n" + DegradedNote
	}
	s.Append(model.RoleAssistant, out.Reply)

	log.Info().
		Str("session_id", s.SessionID).
		Int("scenarios", len(res.Scenarios)).
		Strs("risk_flags", res.RiskFlags).
		Bool("degraded", out.Degraded).
		Msg("Analysis completed")
	return out
}

func (a *Agent) fetch(ctx context.Context, userID string) (*model.ProfileBundle, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.ErrProfileNotFound
	}
	if a.profiles == nil {
		return nil, errors.New("no profile store configured")
	}
	timeout := a.cfg.ProfileTimeout
	if timeout <= 0 {
		timeout = model.DefaultAnalysisConfig().ProfileTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bundle, err := a.profiles.FetchProfile(fetchCtx, userID)
	if err != nil {
		if fetchCtx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(err, fetchCtx.Err())
		}
		return nil, err
	}
	if bundle == nil {
		return nil, model.ErrProfileNotFound
	}
	return bundle, nil
}

func (a *Agent) summarize(ctx context.Context, res *model.AnalysisResult, info model.PartialInfo, fin model.FinancialSummary) (string, *schema.TokenUsage) {
	if a.chatModel == nil {
		return TemplateSummary(res), nil
	}
	msgs, err := summaryMessages(ctx, summaryVars(res, info, fin))
	if err != nil {
		logx.Warn().Err(err).Msg("Summary prompt failed, using template summary")
		return TemplateSummary(res), nil
	}
	resp, err := a.chatModel.Generate(ctx, msgs)
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		logx.Warn().Err(err).Msg("Summary model failed, using template summary")
		return TemplateSummary(res), nil
	}
	return strings.TrimSpace(resp.Content), model.UsageOf(resp)
}

// persist writes the intake record once per session and the analysis record
// every time. It reports whether any write failed.
func (a *Agent) persist(ctx context.Context, s *model.ConversationState, userID string, res *model.AnalysisResult) (degraded bool) {
	if !s.IntakePersisted && a.intake != nil {
		if err := a.intake.SaveIntakeRecord(ctx, userID, s.CollectedInfo, s.PurchaseAmount); err != nil {
			logx.Error().Err(err).Str("session_id", s.SessionID).Msg("Failed to save intake record")
			degraded = true
		} else {
			s.IntakePersisted = true
		}
	}
	if a.analyses != nil {
		if err := a.analyses.SaveAnalysis(ctx, userID, res); err != nil {
			logx.Error().Err(err).Str("session_id", s.SessionID).Msg("Failed to save analysis")
			degraded = true
		}
	}
	return degraded
}
