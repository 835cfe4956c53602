package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	"github.com/finbuddy-intake-core/server/internal/testsupport"
)

func confirmedState() *model.ConversationState {
	s := model.NewConversationState("s-1", analysisNow)
	s.Phase = model.PhaseConfirming
	s.UserConfirmed = true
	s.CollectedInfo = model.PartialInfo{Income: "1.5 lakh", UpcomingExpenses: "none", Dependents: "two kids"}
	s.AllInfoCollected = true
	s.PurchaseAmount = testsupport.Ptr(800_000.0)
	s.Append(model.RoleUser, "yes")
	return s
}

func newAgent(store *testsupport.ProfileStore, sink *testsupport.Sink, opts ...Option) *Agent {
	cfg := model.DefaultAnalysisConfig()
	cfg.ProfileTimeout = 50 * time.Millisecond
	opts = append([]Option{WithClock(func() time.Time { return analysisNow }), WithAnalysisSink(sink)}, opts...)
	return New(store, sink, cfg, opts...)
}

func TestAnalyze_Success(t *testing.T) {
	store := &testsupport.ProfileStore{Bundles: map[string]*model.ProfileBundle{"u-1": testsupport.Bundle("u-1")}}
	sink := &testsupport.Sink{}
	cm := testsupport.NewScriptedChatModel(testsupport.Reply("Asha, the Standard option fits best."))
	a := newAgent(store, sink, WithSummaryModel(cm))
	s := confirmedState()

	out := a.Analyze(context.Background(), s, "u-1")

	assert.False(t, out.Failed)
	assert.False(t, out.Degraded)
	assert.Equal(t, "Asha, the Standard option fits best.", out.Reply)
	assert.Equal(t, model.PhaseDiscussing, s.Phase)
	require.NotNil(t, s.AnalysisResult)
	assert.Equal(t, out.Reply, s.AnalysisResult.HumanSummary)
	assert.True(t, s.IntakePersisted)
	require.Equal(t, 1, sink.IntakeCount())
	assert.Equal(t, "u-1", sink.Intakes[0].UserID)
	assert.Equal(t, s.CollectedInfo, sink.Intakes[0].Info)
	assert.Len(t, sink.Analyses, 1)
	last, _ := s.LastMessage()
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Contains(t, cm.LastInput()[0].Content, "summary for Asha Rao")
}

func TestAnalyze_IntakePersistedOnce(t *testing.T) {
	store := &testsupport.ProfileStore{Bundles: map[string]*model.ProfileBundle{"u-1": testsupport.Bundle("u-1")}}
	sink := &testsupport.Sink{}
	a := newAgent(store, sink)
	s := confirmedState()
	s.IntakePersisted = true

	a.Analyze(context.Background(), s, "u-1")

	assert.Zero(t, sink.IntakeCount())
	assert.Len(t, sink.Analyses, 1)
}

func TestAnalyze_Refused(t *testing.T) {
	a := newAgent(&testsupport.ProfileStore{}, &testsupport.Sink{})

	for _, s := range []*model.ConversationState{
		func() *model.ConversationState { s := confirmedState(); s.UserConfirmed = false; return s }(),
		func() *model.ConversationState { s := confirmedState(); s.Phase = model.PhaseCollecting; return s }(),
	} {
		before := s.Clone()
		out := a.Analyze(context.Background(), s, "u-1")
		assert.True(t, out.Refused)
		assert.Equal(t, ReplyNotConfirmed, out.Reply)
		assert.Equal(t, before, s)
	}
}

func TestAnalyze_ProfileFailures(t *testing.T) {
	tests := []struct {
		name   string
		store  *testsupport.ProfileStore
		userID string
		reply  string
		cause  string
	}{
		{"missing user id", &testsupport.ProfileStore{}, "", ReplyProfileNotFound, "profile not found"},
		{"unknown user", &testsupport.ProfileStore{}, "ghost", ReplyProfileNotFound, "profile not found"},
		{"timeout", &testsupport.ProfileStore{Bundles: map[string]*model.ProfileBundle{"u-1": testsupport.Bundle("u-1")}, Delay: time.Second}, "u-1", ReplyProfileTimeout, "profile fetch timed out"},
		{"store error", &testsupport.ProfileStore{Err: errors.New("connection refused")}, "u-1", ReplyProfileFailed, "profile fetch failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &testsupport.Sink{}
			a := newAgent(tt.store, sink)
			s := confirmedState()

			out := a.Analyze(context.Background(), s, tt.userID)

			assert.True(t, out.Failed)
			assert.Equal(t, tt.reply, out.Reply)
			assert.Equal(t, model.PhaseError, s.Phase)
			assert.Equal(t, tt.cause, s.LastError)
			assert.Nil(t, s.AnalysisResult)
			assert.Zero(t, sink.IntakeCount())
		})
	}
}

func TestAnalyze_SinkFailureIsDegraded(t *testing.T) {
	store := &testsupport.ProfileStore{Bundles: map[string]*model.ProfileBundle{"u-1": testsupport.Bundle("u-1")}}
	sink := &testsupport.Sink{IntakeErr: errors.New("db down")}
	a := newAgent(store, sink)
	s := confirmedState()

	out := a.Analyze(context.Background(), s, "u-1")

	assert.True(t, out.Degraded)
	assert.True(t, strings.HasSuffix(out.Reply, DegradedNote))
	assert.Equal(t, model.PhaseDiscussing, s.Phase)
	assert.False(t, s.IntakePersisted)
	assert.NotNil(t, s.AnalysisResult)
}

func TestAnalyze_SummaryFallback(t *testing.T) {
	store := &testsupport.ProfileStore{Bundles: map[string]*model.ProfileBundle{"u-1": testsupport.Bundle("u-1")}}
	cm := testsupport.NewScriptedChatModel(testsupport.Fail(errors.New("quota")))
	a := newAgent(store, &testsupport.Sink{}, WithSummaryModel(cm))
	s := confirmedState()

	out := a.Analyze(context.Background(), s, "u-1")

	assert.Equal(t, TemplateSummary(s.AnalysisResult), out.Reply)
	assert.Contains(t, out.Reply, "Hi Asha Rao")
	assert.Contains(t, out.Reply, "Standard (20% down)")
}

func TestTemplateSummary_NoScenarios(t *testing.T) {
	res := Compute(Input{Bundle: &model.ProfileBundle{}, Now: analysisNow}, model.DefaultAnalysisConfig())
	out := TemplateSummary(res)
	assert.Contains(t, out, "Hi there")
	assert.Contains(t, out, "could not compute any financing scenarios")
}
