package nodes

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	"github.com/finbuddy-intake-core/server/internal/testsupport"
)

var testLLMConfig = model.LLMConfig{RequestsPerMinute: 0, RetryBackoff: time.Millisecond, CallTimeout: time.Second}

func TestResilientChatModel_RetriesOnce(t *testing.T) {
	inner := testsupport.NewScriptedChatModel(testsupport.Fail(errors.New("503")), testsupport.Reply("hello"))
	m := NewResilientChatModel(inner, "test", nil, testLLMConfig)

	out, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
	assert.Equal(t, 2, inner.Calls())
}

func TestResilientChatModel_GivesUpAfterRetry(t *testing.T) {
	inner := testsupport.NewScriptedChatModel(
		testsupport.Fail(errors.New("first")),
		testsupport.Fail(errors.New("second")),
		testsupport.Reply("never"),
	)
	m := NewResilientChatModel(inner, "test", nil, testLLMConfig)

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, errx.StatusOf(err))
	assert.Equal(t, 2, inner.Calls())
	assert.Equal(t, 1, inner.Remaining())
}

func TestResilientChatModel_CanceledContextNotRetried(t *testing.T) {
	inner := testsupport.NewScriptedChatModel(testsupport.Reply("never"))
	m := NewResilientChatModel(inner, "test", nil, testLLMConfig)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.LessOrEqual(t, inner.Calls(), 1)
}

func TestResilientChatModel_Stream(t *testing.T) {
	inner := testsupport.NewScriptedChatModel(testsupport.Reply("streamed"))
	m := NewResilientChatModel(inner, "test", nil, testLLMConfig)

	sr, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer sr.Close()
	msg, err := sr.Recv()
	require.NoError(t, err)
	assert.Equal(t, "streamed", msg.Content)
}

func TestNewLimiter(t *testing.T) {
	assert.True(t, NewLimiter(0).Allow())
	l := NewLimiter(5)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "burst of one at 5 rpm")
}
