package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/finbuddy-intake-core/server/internal/agent/graph/prompts"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

func summaryVars(res *model.AnalysisResult, info model.PartialInfo, fin model.FinancialSummary) prompts.AnalysisVars {
	vars := prompts.AnalysisVars{
		Name:             res.Profile.Name,
		Age:              res.Profile.Age,
		Occupation:       res.Profile.Occupation,
		MonthlyIncome:    res.Profile.MonthlyIncome,
		CreditScore:      res.Credit.Score,
		CreditBand:       res.Credit.Band,
		ActiveLoans:      res.Liabilities.ActiveLoans,
		Outstanding:      res.Liabilities.TotalOutstanding,
		BankBalance:      model.FormatAmount(fin.BankBalance),
		Dependents:       res.Profile.Dependents,
		UpcomingExpenses: orNA(info.UpcomingExpenses),
		PurchaseGoal:     model.FormatAmount(res.Profile.PurchaseGoal),
		Recommended:      model.NotAvailable,
		RiskFlags:        res.RiskFlags,
	}
	for _, s := range res.Scenarios {
		vars.Scenarios = append(vars.Scenarios, prompts.ScenarioLine{
			Name:           s.Name,
			LoanAmount:     model.FormatAmount(&s.Assumptions.LoanAmount),
			InterestRate:   fmt.Sprintf("%.2f%%", s.Assumptions.InterestRate),
			TenureMonths:   s.Assumptions.TenureMonths,
			MonthlyPayment: model.FormatAmount(&s.Calculations.MonthlyPayment),
			DTI:            model.FormatPercent(s.Calculations.DTI),
			Risk:           s.Risk,
		})
	}
	if len(res.Recommendations) > 0 {
		vars.Recommended = res.Recommendations[0].Scenario
	}
	return vars
}

// summaryMessages builds the model input for the human summary.
func summaryMessages(ctx context.Context, vars prompts.AnalysisVars) ([]*schema.Message, error) {
	sys, err := prompts.RenderAnalysisSystem(ctx, vars)
	if err != nil {
		return nil, err
	}
	return []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage("Please summarise my loan options."),
	}, nil
}

// TemplateSummary is the deterministic summary used when the model cannot
// write one.
func TemplateSummary(res *model.AnalysisResult) string {
	var b strings.Builder
	name := res.Profile.Name
	if name == model.NotAvailable {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s, here is your loan analysis.", name)

	if len(res.Recommendations) == 0 || len(res.Scenarios) == 0 {
		b.WriteString(" I could not compute any financing scenarios from the available quotes, so please share a lender quote or your purchase amount and I will run the numbers.")
		return b.String()
	}

	best := res.Scenarios[0]
	fmt.Fprintf(&b, " The best fit is %s: a loan of %s at %.2f%% for %d months, with a monthly payment of %s.",
		best.Name,
		model.FormatAmount(&best.Assumptions.LoanAmount),
		best.Assumptions.InterestRate,
		best.Assumptions.TenureMonths,
		model.FormatAmount(&best.Calculations.MonthlyPayment),
	)
	if best.Calculations.DTI != nil {
		fmt.Fprintf(&b, " That puts your debt-to-income at %s, which is %s risk.",
			model.FormatPercent(best.Calculations.DTI), strings.ToLower(best.Risk))
	}
	if len(res.Scenarios) > 1 {
		fmt.Fprintf(&b, " I compared %d options in total.", len(res.Scenarios))
	}
	if len(res.RiskFlags) > 0 {
		fmt.Fprintf(&b, " Keep in mind: %s", res.RiskFlags[0])
	}
	if steps := res.Recommendations[0].NextSteps; len(steps) > 0 {
		fmt.Fprintf(&b, " Next step: %s", steps[0])
	}
	return b.String()
}
