package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuddy-intake-core/server/internal/agent/analysis"
	"github.com/finbuddy-intake-core/server/internal/agent/collection"
	"github.com/finbuddy-intake-core/server/internal/agent/extractor"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	"github.com/finbuddy-intake-core/server/internal/testsupport"
)

const fullExtraction = `{"schema_version":1,"income":"1.5 lakh per month","upcoming_expenses":"none","dependents":"one child","purchase_amount":"8 lakh"}`

type fixture struct {
	conversation *testsupport.ScriptedChatModel
	extraction   *testsupport.ScriptedChatModel
	sink         *testsupport.Sink
	runner       Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conversation: testsupport.NewScriptedChatModel(),
		extraction:   testsupport.NewScriptedChatModel(),
		sink:         &testsupport.Sink{},
	}
	profiles := &testsupport.ProfileStore{Bundles: map[string]*model.ProfileBundle{"u-1": testsupport.Bundle("u-1")}}
	cfg := model.DefaultAnalysisConfig()
	cfg.ProfileTimeout = time.Second

	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		ConversationModel:     f.conversation,
		ConversationModelName: "gemini-2.5-flash",
		ExtractionModelName:   "gemini-2.5-flash-lite",
		Collection:            collection.New(f.conversation, extractor.New(f.extraction), 0),
		Analysis: analysis.New(profiles, f.sink, cfg,
			analysis.WithAnalysisSink(f.sink),
			analysis.WithSummaryModel(f.conversation),
			analysis.WithClock(func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) })),
	})
	require.NoError(t, err)
	f.runner = NewRunner(runnable)
	return f
}

func TestBuildGraph_Validation(t *testing.T) {
	_, err := BuildGraph(context.Background(), nil)
	assert.Error(t, err)

	_, err = BuildGraph(context.Background(), &GraphConfig{})
	assert.Error(t, err)
}

func TestTurn_CollectionPath(t *testing.T) {
	f := newFixture(t)
	f.conversation.Push(testsupport.Reply("Nice to meet you! What is your monthly income?"))
	f.extraction.Push(testsupport.Reply(`{"schema_version":1}`))

	s := model.NewConversationState("s-1", time.Now())
	out, err := f.runner.Invoke(context.Background(), model.TurnInput{SessionID: "s-1", UserID: "u-1", Utterance: "  hi there "}, s)
	require.NoError(t, err)

	assert.Equal(t, model.AgentCollection, out.Agent)
	assert.Equal(t, "s-1", out.SessionID)
	assert.Equal(t, "Nice to meet you! What is your monthly income?", out.Reply)
	assert.Equal(t, model.PhaseCollecting, out.Phase)
	assert.Equal(t, "u-1", s.UserID)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, model.Message{Role: model.RoleUser, Text: "hi there"}, s.Messages[0])
	assert.Equal(t, 1, f.conversation.Calls())
}

func TestTurn_ReachesConfirmation(t *testing.T) {
	f := newFixture(t)
	f.conversation.Push(testsupport.Reply("Thanks, that's everything I need."))
	f.extraction.Push(testsupport.Reply(fullExtraction))

	s := model.NewConversationState("s-1", time.Now())
	out, err := f.runner.Invoke(context.Background(), model.TurnInput{SessionID: "s-1", UserID: "u-1", Utterance: "1.5 lakh a month, one child, buying an 8 lakh car"}, s)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseConfirming, out.Phase)
	assert.True(t, out.AllInfoCollected)
	assert.Contains(t, out.Reply, collection.ConfirmationQuestion)
	require.NotNil(t, out.PurchaseAmount)
	assert.InDelta(t, 800_000, *out.PurchaseAmount, 0.001)
}

func TestTurn_AnalysisPath(t *testing.T) {
	f := newFixture(t)
	f.conversation.Push(testsupport.Reply("Here is your loan analysis."))

	s := model.NewConversationState("s-1", time.Now())
	s.Phase = model.PhaseConfirming
	s.AllInfoCollected = true
	s.CollectedInfo = model.PartialInfo{Income: "1.5 lakh per month", UpcomingExpenses: "none", Dependents: "one child"}
	s.PurchaseAmount = testsupport.Ptr(800_000.0)

	out, err := f.runner.Invoke(context.Background(), model.TurnInput{SessionID: "s-1", UserID: "u-1", Utterance: "Yes, that's correct"}, s)
	require.NoError(t, err)

	assert.Equal(t, model.AgentAnalysis, out.Agent)
	assert.Equal(t, model.PhaseDiscussing, out.Phase)
	assert.Equal(t, model.RedirectRecommendation, out.RedirectTo)
	require.NotNil(t, out.Analysis)
	assert.NotEmpty(t, out.Analysis.Scenarios)
	assert.Equal(t, "Here is your loan analysis.", out.Reply)
	assert.True(t, s.UserConfirmed)
	assert.True(t, s.IntakePersisted)
	assert.Equal(t, 1, f.sink.IntakeCount())
	assert.Equal(t, 0, f.extraction.Calls())
}

func TestTurn_AnalysisPathPicksUpCorrection(t *testing.T) {
	f := newFixture(t)
	f.extraction.Push(testsupport.Reply(`{"schema_version":1,"income":"1.5 lakh per month","upcoming_expenses":"none","dependents":"one child","purchase_amount":"9 lakh"}`))
	f.conversation.Push(testsupport.Reply("Here is your loan analysis."))

	s := model.NewConversationState("s-1", time.Now())
	s.Phase = model.PhaseConfirming
	s.AllInfoCollected = true
	s.CollectedInfo = model.PartialInfo{Income: "1.5 lakh per month", UpcomingExpenses: "none", Dependents: "one child"}
	s.PurchaseAmount = testsupport.Ptr(800_000.0)

	out, err := f.runner.Invoke(context.Background(), model.TurnInput{SessionID: "s-1", UserID: "u-1", Utterance: "Sure, but make it 9 lakh"}, s)
	require.NoError(t, err)

	assert.Equal(t, model.AgentAnalysis, out.Agent)
	assert.Equal(t, 1, f.extraction.Calls())
	require.NotNil(t, s.PurchaseAmount)
	assert.InDelta(t, 900_000, *s.PurchaseAmount, 0.001)
	require.NotNil(t, out.Analysis)
	require.NotNil(t, out.Analysis.Profile.PurchaseGoal)
	assert.InDelta(t, 900_000, *out.Analysis.Profile.PurchaseGoal, 0.001)
	require.Len(t, f.sink.Intakes, 1)
	require.NotNil(t, f.sink.Intakes[0].PurchaseAmount)
	assert.InDelta(t, 900_000, *f.sink.Intakes[0].PurchaseAmount, 0.001)
}

func TestTurn_ModelFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("upstream unavailable")
	f.conversation.Push(testsupport.Fail(boom))

	s := model.NewConversationState("s-1", time.Now())
	_, err := f.runner.Invoke(context.Background(), model.TurnInput{SessionID: "s-1", Utterance: "hello"}, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), boom.Error())
	assert.Equal(t, model.PhaseCollecting, s.Phase)
}

func TestTurn_EmptyReplyIsAnError(t *testing.T) {
	f := newFixture(t)
	f.conversation.Push(testsupport.Reply("   "))

	s := model.NewConversationState("s-1", time.Now())
	_, err := f.runner.Invoke(context.Background(), model.TurnInput{SessionID: "s-1", Utterance: "hello"}, s)
	require.Error(t, err)
	assert.Equal(t, 0, f.extraction.Calls())
}
