package model

// AppState stores per-turn state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - Scalar fields are read and written only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Working points at the orchestrator's deep copy of the session state. The
//     turn path is linear, so exactly one node holds it at a time; the
//     committed state is never reachable from the graph.
type AppState struct {
	SessionID string
	UserID    string
	Working   *ConversationState
	Agent     Agent // set by the router branch

	// Accumulated total LLM cost (USD) across model invocations for this turn
	TotalCostUSD float64
	ModelCalls   int
}

// TurnRequest is the graph input: the caller's turn plus the working copy.
type TurnRequest struct {
	Input   TurnInput
	Working *ConversationState
}
