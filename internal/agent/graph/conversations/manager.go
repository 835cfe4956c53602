package conversations

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

// MessagesManager turns a session transcript into model context.
type MessagesManager struct {
	maxMessages int
}

// NewMessagesManager bounds the transcript tail to maxMessages; zero or less
// keeps the whole transcript.
func NewMessagesManager(maxMessages int) *MessagesManager {
	return &MessagesManager{maxMessages: maxMessages}
}

// =========== Function for conversation model ===========
func (cm *MessagesManager) BuildResponseContext(systemPrompt string, history []model.Message) []*schema.Message {
	recent := TrimTail(history, cm.maxMessages)

	messages := make([]*schema.Message, 0, len(recent)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	for _, m := range recent {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		switch m.Role {
		case model.RoleUser:
			messages = append(messages, schema.UserMessage(m.Text))
		case model.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(m.Text, nil))
		}
	}
	return messages
}

// =========== Function for extraction ===========
func (cm *MessagesManager) BuildExtractionContext(history []model.Message) string {
	return "Conversation:\n" + Render(TrimTail(history, cm.maxMessages))
}

// Render formats messages one per line as "role: text", skipping system
// and empty entries.
func Render(history []model.Message) string {
	var b strings.Builder
	for _, m := range history {
		text := strings.TrimSpace(m.Text)
		if text == "" || m.Role == model.RoleSystem {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ====================== Helper function ======================

// TrimTail returns the last max messages without aliasing the input.
func TrimTail(messages []model.Message, max int) []model.Message {
	if max <= 0 || len(messages) <= max {
		return append([]model.Message(nil), messages...)
	}
	return append([]model.Message(nil), messages[len(messages)-max:]...)
}
