package collection

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuddy-intake-core/server/internal/agent/extractor"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	"github.com/finbuddy-intake-core/server/internal/testsupport"
)

const completeExtraction = `{"schema_version":1,"income":"1 lakh per month","upcoming_expenses":"none","dependents":"two kids","purchase_amount":"8 lakh"}`

func newState(phase model.Phase, utterances ...string) *model.ConversationState {
	s := model.NewConversationState("s-1", time.Unix(0, 0))
	s.Phase = phase
	for _, u := range utterances {
		s.Append(model.RoleUser, u)
	}
	return s
}

func TestBuildPrompt(t *testing.T) {
	a := New(nil, nil, 3)
	s := newState(model.PhaseCollecting, "hi")
	s.Append(model.RoleAssistant, "hello, what is your income?")
	s.Append(model.RoleUser, "1 lakh a month")
	s.Append(model.RoleAssistant, "thanks")
	s.Append(model.RoleUser, "I have two kids")
	s.CollectedInfo.Income = "1 lakh a month"

	msgs, err := a.BuildPrompt(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "- income: 1 lakh a month")
	assert.Contains(t, msgs[0].Content, "- upcoming_expenses")
	assert.Equal(t, "1 lakh a month", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "I have two kids", msgs[3].Content)
}

func TestFinalize_IncompleteStaysCollecting(t *testing.T) {
	ext := extractor.New(testsupport.NewScriptedChatModel(testsupport.Reply(`{"schema_version":1,"income":"1 lakh per month"}`)))
	a := New(nil, ext, 0)
	s := newState(model.PhaseCollecting, "I earn 1 lakh a month")

	out := a.Finalize(context.Background(), s, "Thanks! Any upcoming expenses?")

	assert.Equal(t, model.PhaseCollecting, s.Phase)
	assert.False(t, out.PhaseChanged)
	assert.False(t, out.QuestionAppended)
	assert.Equal(t, "1 lakh per month", s.CollectedInfo.Income)
	assert.False(t, s.AllInfoCollected)
	last, _ := s.LastMessage()
	assert.Equal(t, model.Message{Role: model.RoleAssistant, Text: "Thanks! Any upcoming expenses?"}, last)
}

func TestFinalize_ForcesConfirmationQuestion(t *testing.T) {
	ext := extractor.New(testsupport.NewScriptedChatModel(testsupport.Reply(completeExtraction)))
	a := New(nil, ext, 0)
	s := newState(model.PhaseCollecting, "two kids, no expenses")

	out := a.Finalize(context.Background(), s, "Got it, thanks.")

	assert.Equal(t, model.PhaseConfirming, s.Phase)
	assert.True(t, out.PhaseChanged)
	assert.True(t, out.QuestionAppended)
	assert.True(t, strings.HasSuffix(out.Reply, ConfirmationQuestion))
	last, _ := s.LastMessage()
	assert.Equal(t, out.Reply, last.Text)
	require.NotNil(t, s.PurchaseAmount)
	assert.InDelta(t, 800_000, *s.PurchaseAmount, 0.001)
}

func TestFinalize_ReplyAlreadyAsks(t *testing.T) {
	ext := extractor.New(testsupport.NewScriptedChatModel(testsupport.Reply(completeExtraction)))
	a := New(nil, ext, 0)
	s := newState(model.PhaseCollecting, "two kids")

	out := a.Finalize(context.Background(), s, "Thanks! Shall I analyze your options?")

	assert.Equal(t, model.PhaseConfirming, s.Phase)
	assert.False(t, out.QuestionAppended)
	assert.Equal(t, "Thanks! Shall I analyze your options?", out.Reply)
}

func TestFinalize_ErrorResume(t *testing.T) {
	t.Run("incomplete returns to collecting", func(t *testing.T) {
		a := New(nil, extractor.New(testsupport.NewScriptedChatModel(testsupport.Reply(`{"schema_version":1}`))), 0)
		s := newState(model.PhaseError, "hello again")
		s.LastError = "profile not found"

		a.Finalize(context.Background(), s, "Welcome back.")

		assert.Equal(t, model.PhaseCollecting, s.Phase)
		assert.Empty(t, s.LastError)
	})
	t.Run("complete returns to confirming", func(t *testing.T) {
		a := New(nil, extractor.New(testsupport.NewScriptedChatModel(testsupport.Reply(completeExtraction))), 0)
		s := newState(model.PhaseError, "try again")
		s.LastError = "profile lookup timed out"

		out := a.Finalize(context.Background(), s, "Let's retry.")

		assert.Equal(t, model.PhaseConfirming, s.Phase)
		assert.True(t, out.QuestionAppended)
		assert.Empty(t, s.LastError)
	})
}

func TestFinalize_MergeNeverClears(t *testing.T) {
	a := New(nil, extractor.New(testsupport.NewScriptedChatModel(testsupport.Reply(`{"schema_version":1,"dependents":"one daughter"}`))), 0)
	s := newState(model.PhaseCollecting, "one daughter")
	s.CollectedInfo.Income = "2 lakh"
	s.PurchaseAmount = testsupport.Ptr(500_000.0)

	a.Finalize(context.Background(), s, "noted")

	assert.Equal(t, "2 lakh", s.CollectedInfo.Income)
	assert.Equal(t, "one daughter", s.CollectedInfo.Dependents)
	require.NotNil(t, s.PurchaseAmount)
	assert.InDelta(t, 500_000, *s.PurchaseAmount, 0.001)
}

func TestFinalize_ConfirmingNoForcing(t *testing.T) {
	a := New(nil, extractor.New(testsupport.NewScriptedChatModel(testsupport.Reply(completeExtraction))), 0)
	s := newState(model.PhaseConfirming, "what do you have so far?")

	out := a.Finalize(context.Background(), s, "You earn 1 lakh a month.")

	assert.Equal(t, model.PhaseConfirming, s.Phase)
	assert.False(t, out.QuestionAppended)
}

func TestStep(t *testing.T) {
	cm := testsupport.NewScriptedChatModel(testsupport.Reply("What is your monthly income?"))
	a := New(cm, extractor.New(nil), 0)
	s := newState(model.PhaseCollecting, "hi")

	reply, err := a.Step(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "What is your monthly income?", reply)
	assert.Len(t, s.Messages, 2)
}

func TestStep_ModelFailure(t *testing.T) {
	cm := testsupport.NewScriptedChatModel(testsupport.Fail(errors.New("unavailable")))
	a := New(cm, nil, 0)
	s := newState(model.PhaseCollecting, "hi")

	_, err := a.Step(context.Background(), s)
	require.Error(t, err)
	assert.Len(t, s.Messages, 1)
}

func TestDetectConfirmation(t *testing.T) {
	tests := []struct {
		name  string
		phase model.Phase
		msgs  []model.Message
		want  bool
	}{
		{"confirming yes", model.PhaseConfirming, []model.Message{{Role: model.RoleUser, Text: "yes please"}}, true},
		{"confirming no", model.PhaseConfirming, []model.Message{{Role: model.RoleUser, Text: "no, not yet"}}, false},
		{"collecting yes", model.PhaseCollecting, []model.Message{{Role: model.RoleUser, Text: "yes"}}, false},
		{"last is assistant", model.PhaseConfirming, []model.Message{{Role: model.RoleUser, Text: "yes"}, {Role: model.RoleAssistant, Text: "ok"}}, false},
		{"no messages", model.PhaseConfirming, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(tt.phase)
			s.Messages = tt.msgs
			assert.Equal(t, tt.want, DetectConfirmation(s))
			assert.Equal(t, tt.want, s.UserConfirmed)
		})
	}
}

func TestReconcile(t *testing.T) {
	t.Run("plain confirmation skips extraction", func(t *testing.T) {
		cm := testsupport.NewScriptedChatModel()
		a := New(nil, extractor.New(cm), 0)
		s := newState(model.PhaseConfirming, "yes, go ahead")

		_, ok := a.Reconcile(context.Background(), s)
		assert.False(t, ok)
		assert.Equal(t, 0, cm.Calls())
	})

	t.Run("correction with figures is merged", func(t *testing.T) {
		cm := testsupport.NewScriptedChatModel(testsupport.Reply(`{"schema_version":1,"purchase_amount":"50 lakh"}`))
		a := New(nil, extractor.New(cm), 0)
		s := newState(model.PhaseConfirming, "sure, but make it 50 lakhs")
		s.CollectedInfo = model.PartialInfo{Income: "1 lakh per month", UpcomingExpenses: "none", Dependents: "two kids"}
		s.PurchaseAmount = testsupport.Ptr(4_500_000.0)
		s.AllInfoCollected = true

		res, ok := a.Reconcile(context.Background(), s)
		require.True(t, ok)
		assert.Equal(t, extractor.SourceModel, res.Source)
		require.NotNil(t, s.PurchaseAmount)
		assert.InDelta(t, 5_000_000, *s.PurchaseAmount, 0.001)
		assert.Equal(t, "1 lakh per month", s.CollectedInfo.Income)
		assert.True(t, s.AllInfoCollected)
	})
}
