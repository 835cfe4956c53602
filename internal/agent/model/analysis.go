package model

import "time"

// AnalysisResult is the structured output of the analysis agent.
type AnalysisResult struct {
	GeneratedAt     time.Time            `json:"generated_at"`
	Profile         ProfileSummary       `json:"profile"`
	Credit          CreditAssessment     `json:"credit_assessment"`
	Liabilities     LiabilitySummary     `json:"liabilities"`
	Liquidity       LiquiditySummary     `json:"liquidity"`
	Metrics         DerivedMetrics       `json:"derived_metrics"`
	Scenarios       []Scenario           `json:"scenarios"`
	Recommendations []Recommendation     `json:"recommendations"`
	Sensitivity     []SensitivityVariant `json:"sensitivity"`
	RiskFlags       []string             `json:"risk_flags"`
	Notes           []string             `json:"notes"`
	HumanSummary    string               `json:"human_summary"`
}

// ProfileSummary describes the requesting user. Missing values carry NotAvailable.
type ProfileSummary struct {
	Name          string   `json:"name"`
	Age           string   `json:"age"`
	Occupation    string   `json:"occupation"`
	Dependents    string   `json:"dependents"`
	MonthlyIncome string   `json:"monthly_income"`
	IncomeNotes   string   `json:"income_notes"`
	PurchaseGoal  *float64 `json:"purchase_goal,omitempty"`
}

type CreditAssessment struct {
	Score string   `json:"score"`
	Band  string   `json:"band"`
	Notes []string `json:"notes"`
}

type LiabilitySummary struct {
	ActiveLoans      string `json:"active_loans"`
	TotalOutstanding string `json:"total_outstanding"`
	PastDue          string `json:"past_due"`
}

type LiquiditySummary struct {
	BankBalance           string `json:"bank_balance"`
	Investments           string `json:"investments"`
	UsableAfterBuffer     string `json:"usable_after_buffer"`
	EmergencyBufferMonths int    `json:"emergency_buffer_months"`
}

type DerivedMetrics struct {
	ExistingObligations string `json:"existing_monthly_obligations"`
	MonthlySurplus      string `json:"monthly_surplus"`
	MaxAffordableEMI    string `json:"max_affordable_emi"`
	DTIIfLoan           string `json:"dti_if_loan"`
	DTICap              string `json:"dti_cap"`
}

// ScenarioAssumptions are the inputs of a financing scenario.
type ScenarioAssumptions struct {
	Lender       string  `json:"lender"`
	DownPayment  float64 `json:"down_payment"`
	LoanAmount   float64 `json:"loan_amount"`
	InterestRate float64 `json:"interest_rate"`
	TenureMonths int     `json:"tenure_months"`
}

// ScenarioCalculations are the computed outputs of a financing scenario.
// DTI is nil when monthly income is unknown.
type ScenarioCalculations struct {
	MonthlyPayment         float64  `json:"monthly_payment"`
	TotalInterest          float64  `json:"total_interest"`
	TotalPayable           float64  `json:"total_payable"`
	DTI                    *float64 `json:"dti,omitempty"`
	BufferAfterDownPayment *float64 `json:"buffer_after_down_payment,omitempty"`
}

type Scenario struct {
	Name         string               `json:"name"`
	Assumptions  ScenarioAssumptions  `json:"assumptions"`
	Calculations ScenarioCalculations `json:"calculations"`
	Pros         []string             `json:"pros"`
	Cons         []string             `json:"cons"`
	Risk         string               `json:"risk"`
	RiskNote     string               `json:"risk_note"`
}

type Recommendation struct {
	Rank      int      `json:"rank"`
	Scenario  string   `json:"scenario"`
	Rationale []string `json:"rationale"`
	NextSteps []string `json:"next_steps"`
}

// SensitivityKind names the variable a sensitivity variant shifts.
type SensitivityKind string

const (
	SensitivityRate        SensitivityKind = "rate_shift"
	SensitivityDownPayment SensitivityKind = "down_payment_shift"
)

type SensitivityVariant struct {
	Kind           SensitivityKind `json:"kind"`
	FromScenario   string          `json:"from_scenario"`
	Shift          string          `json:"shift"`
	InterestRate   float64         `json:"interest_rate"`
	DownPayment    float64         `json:"down_payment"`
	LoanAmount     float64         `json:"loan_amount"`
	MonthlyPayment float64         `json:"monthly_payment"`
	Impact         string          `json:"impact"`
}

// Clone deep-copies the result.
func (a *AnalysisResult) Clone() *AnalysisResult {
	if a == nil {
		return nil
	}
	c := *a
	c.Credit.Notes = append([]string(nil), a.Credit.Notes...)
	c.Scenarios = make([]Scenario, len(a.Scenarios))
	for i, s := range a.Scenarios {
		s.Pros = append([]string(nil), s.Pros...)
		s.Cons = append([]string(nil), s.Cons...)
		s.Calculations.DTI = clonePtr(s.Calculations.DTI)
		s.Calculations.BufferAfterDownPayment = clonePtr(s.Calculations.BufferAfterDownPayment)
		c.Scenarios[i] = s
	}
	c.Recommendations = make([]Recommendation, len(a.Recommendations))
	for i, r := range a.Recommendations {
		r.Rationale = append([]string(nil), r.Rationale...)
		r.NextSteps = append([]string(nil), r.NextSteps...)
		c.Recommendations[i] = r
	}
	c.Sensitivity = append([]SensitivityVariant(nil), a.Sensitivity...)
	c.RiskFlags = append([]string(nil), a.RiskFlags...)
	c.Notes = append([]string(nil), a.Notes...)
	c.Profile.PurchaseGoal = clonePtr(a.Profile.PurchaseGoal)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
