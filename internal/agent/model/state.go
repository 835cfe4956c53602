package model

import (
	"strings"
	"time"
)

// StateSchemaVersion is bumped whenever the persisted ConversationState shape changes.
const StateSchemaVersion = 1

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ConversationState is the durable per-session record.
type ConversationState struct {
	SchemaVersion    int             `json:"schema_version"`
	SessionID        string          `json:"session_id"`
	UserID           string          `json:"user_id,omitempty"`
	Messages         []Message       `json:"messages"`
	Phase            Phase           `json:"phase"`
	CollectedInfo    PartialInfo     `json:"collected_info"`
	PurchaseAmount   *float64        `json:"purchase_amount,omitempty"`
	AllInfoCollected bool            `json:"all_info_collected"`
	AnalysisResult   *AnalysisResult `json:"analysis_result,omitempty"`
	UserConfirmed    bool            `json:"user_confirmed"`
	IntakePersisted  bool            `json:"intake_persisted"`
	LastError        string          `json:"last_error,omitempty"`
	Turns            int             `json:"turns"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewConversationState creates the state for a session seen for the first time.
func NewConversationState(sessionID string, now time.Time) *ConversationState {
	return &ConversationState{
		SchemaVersion: StateSchemaVersion,
		SessionID:     sessionID,
		Messages:      []Message{},
		Phase:         PhaseCollecting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy so a turn can mutate it without touching the
// committed state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	if s.PurchaseAmount != nil {
		v := *s.PurchaseAmount
		c.PurchaseAmount = &v
	}
	if s.AnalysisResult != nil {
		c.AnalysisResult = s.AnalysisResult.Clone()
	}
	return &c
}

// Append adds a message to the transcript.
func (s *ConversationState) Append(role Role, text string) {
	s.Messages = append(s.Messages, Message{Role: role, Text: text})
}

// LastMessage returns the most recent transcript entry.
func (s *ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUserUtterance returns the text of the most recent user message.
func (s *ConversationState) LastUserUtterance() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Text, true
		}
	}
	return "", false
}

// ApplyExtraction merges an extraction result into the state and recomputes
// the derived completeness flag. It is the only writer of AllInfoCollected.
func (s *ConversationState) ApplyExtraction(info PartialInfo, amount *float64) {
	s.CollectedInfo = s.CollectedInfo.Merge(info)
	s.PurchaseAmount = MergeAmount(s.PurchaseAmount, amount)
	s.AllInfoCollected = s.CollectedInfo.Complete()
}

// UserText concatenates user utterances, one per line.
func UserText(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != RoleUser || strings.TrimSpace(m.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimSpace(m.Text))
	}
	return b.String()
}
