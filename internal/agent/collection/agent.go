// Package collection implements the intake agent: it keeps the conversation
// going until income, upcoming expenses and dependents are known, then asks
// the user to confirm before analysis.
package collection

import (
	"context"
	"errors"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/finbuddy-intake-core/server/internal/agent/extractor"
	"github.com/finbuddy-intake-core/server/internal/agent/graph/conversations"
	"github.com/finbuddy-intake-core/server/internal/agent/graph/prompts"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// DefaultMaxPromptMessages bounds the transcript tail sent to the model.
const DefaultMaxPromptMessages = 40

// Outcome describes what Finalize did to the state.
type Outcome struct {
	Reply            string
	Extraction       extractor.Result
	QuestionAppended bool
	PreviousPhase    model.Phase
	PhaseChanged     bool
}

type Agent struct {
	chatModel einomodel.BaseChatModel
	extractor *extractor.Extractor
	messages  *conversations.MessagesManager
}

// New builds the collection agent. chatModel is only needed by Step; the
// graph drives the model itself and calls BuildPrompt and Finalize.
func New(chatModel einomodel.BaseChatModel, ext *extractor.Extractor, maxPromptMessages int) *Agent {
	if maxPromptMessages <= 0 {
		maxPromptMessages = DefaultMaxPromptMessages
	}
	if ext == nil {
		ext = extractor.New(nil)
	}
	return &Agent{chatModel: chatModel, extractor: ext, messages: conversations.NewMessagesManager(maxPromptMessages)}
}

// BuildPrompt renders the system prompt for the current phase followed by the
// transcript tail.
func (a *Agent) BuildPrompt(ctx context.Context, s *model.ConversationState) ([]*schema.Message, error) {
	vars := prompts.CollectionVars{
		Phase:            string(s.Phase),
		Missing:          s.CollectedInfo.Missing(),
		PurchaseAmount:   model.FormatAmount(s.PurchaseAmount),
		AllInfoCollected: s.AllInfoCollected,
		LastError:        s.LastError,
		ConfirmQuestion:  ConfirmationQuestion,
	}
	for _, slot := range []prompts.Slot{
		{Name: model.SlotIncome, Value: s.CollectedInfo.Income},
		{Name: model.SlotUpcomingExpenses, Value: s.CollectedInfo.UpcomingExpenses},
		{Name: model.SlotDependents, Value: s.CollectedInfo.Dependents},
		{Name: model.SlotAdditional, Value: s.CollectedInfo.Additional},
	} {
		if strings.TrimSpace(slot.Value) != "" {
			vars.Collected = append(vars.Collected, slot)
		}
	}
	if s.Phase == model.PhaseDiscussing && s.AnalysisResult != nil {
		vars.AnalysisSummary = s.AnalysisResult.HumanSummary
	}

	sys, err := prompts.RenderCollectionSystem(ctx, vars)
	if err != nil {
		return nil, err
	}

	return a.messages.BuildResponseContext(sys, s.Messages), nil
}

// Finalize records the model reply, re-extracts intake over the full
// transcript and applies the confirmation forcing rule.
func (a *Agent) Finalize(ctx context.Context, s *model.ConversationState, reply string) Outcome {
	out := Outcome{PreviousPhase: s.Phase}
	reply = strings.TrimSpace(reply)
	s.Append(model.RoleAssistant, reply)

	out.Extraction = a.extractor.Extract(ctx, s.Messages)
	s.ApplyExtraction(out.Extraction.Info, out.Extraction.PurchaseAmount)

	switch {
	case s.AllInfoCollected && (s.Phase == model.PhaseCollecting || s.Phase == model.PhaseError):
		if !AsksForConfirmation(reply) {
			reply = joinReply(reply, ConfirmationQuestion)
			s.Messages[len(s.Messages)-1].Text = reply
			out.QuestionAppended = true
		}
		a.transition(s, model.PhaseConfirming)
	case s.Phase == model.PhaseError:
		a.transition(s, model.PhaseCollecting)
	}

	out.Reply = reply
	out.PhaseChanged = s.Phase != out.PreviousPhase
	logx.Debug().
		Str("session_id", s.SessionID).
		Str("phase", string(s.Phase)).
		Str("extraction_source", string(out.Extraction.Source)).
		Bool("all_info_collected", s.AllInfoCollected).
		Strs("missing", s.CollectedInfo.Missing()).
		Msg("Collection step finalized")
	return out
}

func (a *Agent) transition(s *model.ConversationState, to model.Phase) {
	from := s.Phase
	if err := s.TransitionTo(to); err != nil {
		logx.Warn().Err(err).Str("session_id", s.SessionID).Msg("Phase transition rejected")
		return
	}
	if from == model.PhaseError {
		s.LastError = ""
	}
}

// Step runs one full collection turn: prompt, model call, finalize. The
// latest user utterance must already be on the transcript.
func (a *Agent) Step(ctx context.Context, s *model.ConversationState) (string, error) {
	if a.chatModel == nil {
		return "", errors.New("collection agent has no chat model")
	}
	msgs, err := a.BuildPrompt(ctx, s)
	if err != nil {
		return "", err
	}
	resp, err := a.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", errx.WrapModel(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", errx.WrapModel(errors.New("empty reply"))
	}
	return a.Finalize(ctx, s, resp.Content).Reply, nil
}

// DetectConfirmation sets UserConfirmed when the session awaits confirmation
// and the latest message is an affirmative user utterance.
func DetectConfirmation(s *model.ConversationState) bool {
	if s.Phase != model.PhaseConfirming {
		return false
	}
	last, ok := s.LastMessage()
	if !ok || last.Role != model.RoleUser || !IsAffirmative(last.Text) {
		return false
	}
	s.UserConfirmed = true
	return true
}

// Reconcile re-extracts intake when the confirming utterance carries figures,
// so a correction given with the confirmation ("sure, but make it 50 lakhs")
// reaches the analysis. ok is false when no extraction ran.
func (a *Agent) Reconcile(ctx context.Context, s *model.ConversationState) (extractor.Result, bool) {
	last, found := s.LastMessage()
	if !found || last.Role != model.RoleUser || !strings.ContainsAny(last.Text, "0123456789") {
		return extractor.Result{}, false
	}
	res := a.extractor.Extract(ctx, s.Messages)
	s.ApplyExtraction(res.Info, res.PurchaseAmount)
	return res, true
}

func joinReply(reply, question string) string {
	if reply == "" {
		return question
	}
	return reply + "\n\n" + question
}
