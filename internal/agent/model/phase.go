package model

import (
	"fmt"

	errx "github.com/finbuddy-intake-core/server/internal/core/error"
)

// Phase is the conversation stage a session is in. Exactly one is active.
type Phase string

const (
	PhaseCollecting Phase = "COLLECTING"
	PhaseConfirming Phase = "CONFIRMING"
	PhaseAnalyzing  Phase = "ANALYZING"
	PhaseDiscussing Phase = "DISCUSSING"
	PhaseError      Phase = "ERROR"
)

// rank orders the forward path. ERROR sits outside the order.
var rank = map[Phase]int{
	PhaseCollecting: 0,
	PhaseConfirming: 1,
	PhaseAnalyzing:  2,
	PhaseDiscussing: 3,
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := rank[p]
	return ok || p == PhaseError
}

// Rank returns the position of p on the forward path, or -1 for ERROR.
func (p Phase) Rank() int {
	if r, ok := rank[p]; ok {
		return r
	}
	return -1
}

// CanTransition reports whether a session may move from one phase to another.
//
// Forward moves follow COLLECTING → CONFIRMING → ANALYZING → DISCUSSING one
// step at a time. Any phase may enter ERROR. A session in ERROR may only resume
// into COLLECTING or CONFIRMING, never directly into ANALYZING.
// Staying in the same phase is always allowed.
func CanTransition(from, to Phase) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to || to == PhaseError {
		return true
	}
	if from == PhaseError {
		return to == PhaseCollecting || to == PhaseConfirming
	}
	return to.Rank() == from.Rank()+1
}

// TransitionTo moves the state to the given phase, enforcing CanTransition.
func (s *ConversationState) TransitionTo(to Phase) error {
	if !CanTransition(s.Phase, to) {
		return fmt.Errorf("%w: %s -> %s", errx.ErrInvalidTransition, s.Phase, to)
	}
	s.Phase = to
	return nil
}
