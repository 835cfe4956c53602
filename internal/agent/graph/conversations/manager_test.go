package conversations

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

func transcript() []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Text: "internal note"},
		{Role: model.RoleUser, Text: "hi"},
		{Role: model.RoleAssistant, Text: "hello, what's your income?"},
		{Role: model.RoleUser, Text: "   "},
		{Role: model.RoleUser, Text: " 1 lakh a month "},
	}
}

func TestTrimTail(t *testing.T) {
	msgs := transcript()
	assert.Len(t, TrimTail(msgs, 0), 5)
	assert.Len(t, TrimTail(msgs, 10), 5)

	tail := TrimTail(msgs, 2)
	require.Len(t, tail, 2)
	assert.Equal(t, " 1 lakh a month ", tail[1].Text)

	tail[1].Text = "changed"
	assert.Equal(t, " 1 lakh a month ", msgs[4].Text)
}

func TestBuildResponseContext(t *testing.T) {
	cm := NewMessagesManager(3)
	got := cm.BuildResponseContext("system prompt", transcript())

	require.Len(t, got, 3)
	assert.Equal(t, schema.System, got[0].Role)
	assert.Equal(t, "system prompt", got[0].Content)
	assert.Equal(t, schema.Assistant, got[1].Role)
	assert.Equal(t, schema.User, got[2].Role)
}

func TestBuildExtractionContext(t *testing.T) {
	cm := NewMessagesManager(0)
	assert.Equal(t,
		"Conversation:\nuser: hi\nassistant: hello, what's your income?\nuser: 1 lakh a month",
		cm.BuildExtractionContext(transcript()))
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, "", Render(nil))
}
