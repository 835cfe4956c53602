package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

func TestInputConverterPreHandler(t *testing.T) {
	pre := NewInputConverterPreHandler()
	state := &model.AppState{TotalCostUSD: 3, ModelCalls: 2}

	_, err := pre(context.Background(), &model.TurnRequest{}, state)
	assert.Error(t, err)

	working := model.NewConversationState("s-1", time.Now())
	working.UserID = "stored-user"
	_, err = pre(context.Background(), &model.TurnRequest{Working: working}, state)
	require.NoError(t, err)
	assert.Equal(t, "s-1", state.SessionID)
	assert.Equal(t, "stored-user", state.UserID)
	assert.Same(t, working, state.Working)
	assert.Zero(t, state.TotalCostUSD)
	assert.Zero(t, state.ModelCalls)

	_, err = pre(context.Background(), &model.TurnRequest{Input: model.TurnInput{UserID: " u-9 "}, Working: working}, state)
	require.NoError(t, err)
	assert.Equal(t, "u-9", state.UserID)
}

func TestChatModelPostHandler(t *testing.T) {
	post := NewChatModelPostHandler(NodeConversationModel, "gemini-2.5-flash")
	state := &model.AppState{SessionID: "s-1"}

	msg := schema.AssistantMessage("hello", nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 0, TotalTokens: 1_000_000}}

	out, err := post(context.Background(), msg, state)
	require.NoError(t, err)
	assert.Same(t, msg, out)
	assert.Equal(t, 1, state.ModelCalls)
	assert.InDelta(t, 0.30, state.TotalCostUSD, 1e-9)
	assert.InDelta(t, 0.30, out.Extra["usage_cost_total_usd"], 1e-9)

	// Responses without usage are counted but cost nothing.
	_, err = post(context.Background(), schema.AssistantMessage("again", nil), state)
	require.NoError(t, err)
	assert.Equal(t, 2, state.ModelCalls)
	assert.InDelta(t, 0.30, state.TotalCostUSD, 1e-9)
}
