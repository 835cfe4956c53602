// Package router picks the agent that handles a turn.
package router

import (
	"github.com/finbuddy-intake-core/server/internal/agent/collection"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

// Route returns AgentAnalysis only when the session awaits confirmation and
// the latest message is an affirmative user utterance. It has no side effects.
func Route(s *model.ConversationState) model.Agent {
	if s == nil || s.Phase != model.PhaseConfirming {
		return model.AgentCollection
	}
	last, ok := s.LastMessage()
	if !ok || last.Role != model.RoleUser {
		return model.AgentCollection
	}
	if collection.IsAffirmative(last.Text) {
		return model.AgentAnalysis
	}
	return model.AgentCollection
}
