package model

// Agent selects which agent handles a step.
type Agent string

const (
	AgentCollection Agent = "collection"
	AgentAnalysis   Agent = "analysis"
)

// Redirect targets pushed to the caller when the conversation changes stage.
const (
	RedirectAnalysing      = "/analysing"
	RedirectRecommendation = "/recommendation"
)

// TurnInput is one user utterance submitted by a caller.
type TurnInput struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Utterance string `json:"utterance"`
}

// StepOutput is one streamed item, produced per completed agent step.
type StepOutput struct {
	Agent            Agent           `json:"agent"`
	SessionID        string          `json:"session_id"`
	Reply            string          `json:"reply_text"`
	Phase            Phase           `json:"phase"`
	CollectedInfo    PartialInfo     `json:"collected_info"`
	AllInfoCollected bool            `json:"all_info_collected"`
	Confirmed        *bool           `json:"confirmed,omitempty"`
	PurchaseAmount   *float64        `json:"purchase_amount,omitempty"`
	Analysis         *AnalysisResult `json:"analysis,omitempty"`
	RedirectTo       string          `json:"redirect_to,omitempty"`
	// Degraded is set when the reply was delivered but a best-effort side
	// effect (intake persistence) failed.
	Degraded bool `json:"degraded,omitempty"`
}

// NewStepOutput snapshots the state after an agent step.
func NewStepOutput(agent Agent, reply string, s *ConversationState) *StepOutput {
	return &StepOutput{
		Agent:            agent,
		SessionID:        s.SessionID,
		Reply:            reply,
		Phase:            s.Phase,
		CollectedInfo:    s.CollectedInfo,
		AllInfoCollected: s.AllInfoCollected,
		PurchaseAmount:   clonePtr(s.PurchaseAmount),
	}
}

// EventType names a notifier event.
type EventType string

const (
	EventRedirect      EventType = "redirect"
	EventPhaseChanged  EventType = "phase_changed"
	EventAnalysisReady EventType = "analysis_ready"
)

// Event is published to the notifier after a committed step.
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	Phase      Phase     `json:"phase,omitempty"`
	RedirectTo string    `json:"redirect_to,omitempty"`
}
