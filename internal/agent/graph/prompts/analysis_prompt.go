package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/analysis_prompt.txt
var analysisSystemPrompt string

// ScenarioLine is a pre-formatted scenario row for the summary prompt.
type ScenarioLine struct {
	Name           string
	LoanAmount     string
	InterestRate   string
	TenureMonths   int
	MonthlyPayment string
	DTI            string
	Risk           string
}

// AnalysisVars parameterises the analysis summary prompt. Every value is
// already rendered; missing data carries the "not available" sentinel.
type AnalysisVars struct {
	Name             string
	Age              string
	Occupation       string
	MonthlyIncome    string
	CreditScore      string
	CreditBand       string
	ActiveLoans      string
	Outstanding      string
	BankBalance      string
	Dependents       string
	UpcomingExpenses string
	PurchaseGoal     string
	Scenarios        []ScenarioLine
	Recommended      string
	RiskFlags        []string
}

// RenderAnalysisSystem renders the prompt used to write the human summary.
func RenderAnalysisSystem(ctx context.Context, vars AnalysisVars) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(analysisSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Name":             vars.Name,
		"Age":              vars.Age,
		"Occupation":       vars.Occupation,
		"MonthlyIncome":    vars.MonthlyIncome,
		"CreditScore":      vars.CreditScore,
		"CreditBand":       vars.CreditBand,
		"ActiveLoans":      vars.ActiveLoans,
		"Outstanding":      vars.Outstanding,
		"BankBalance":      vars.BankBalance,
		"Dependents":       vars.Dependents,
		"UpcomingExpenses": vars.UpcomingExpenses,
		"PurchaseGoal":     vars.PurchaseGoal,
		"Scenarios":        vars.Scenarios,
		"Recommended":      vars.Recommended,
		"RiskFlags":        vars.RiskFlags,
	})
	if err != nil {
		return "", fmt.Errorf("analysis prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("analysis prompt render: empty result")
	}
	return msgs[0].Content, nil
}
