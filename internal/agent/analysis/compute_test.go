package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	"github.com/finbuddy-intake-core/server/internal/testsupport"
)

var analysisNow = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

func baseInput() Input {
	return Input{
		Bundle: testsupport.Bundle("u-1"),
		Info: model.PartialInfo{
			Income:           "1.5 lakh per month",
			UpcomingExpenses: "none",
			Dependents:       "wife and a son",
		},
		PurchaseAmount: testsupport.Ptr(800_000.0),
		Now:            analysisNow,
	}
}

func TestCompute_Scenarios(t *testing.T) {
	res := Compute(baseInput(), model.DefaultAnalysisConfig())

	require.Len(t, res.Scenarios, 3)
	byName := map[string]model.Scenario{}
	for _, s := range res.Scenarios {
		byName[s.Name] = s
	}

	a := byName["Bank A"]
	assert.InDelta(t, 700_000, a.Assumptions.LoanAmount, 0.001)
	assert.InDelta(t, 100_000, a.Assumptions.DownPayment, 0.001)
	assert.InDelta(t, 14530.85, a.Calculations.MonthlyPayment, 0.011)
	require.NotNil(t, a.Calculations.DTI)
	assert.InDelta(t, 0.1235, *a.Calculations.DTI, 0.0001)
	assert.Equal(t, RiskLow, a.Risk)
	require.NotNil(t, a.Calculations.BufferAfterDownPayment)
	assert.InDelta(t, 1_100_000, *a.Calculations.BufferAfterDownPayment, 0.001)

	b := byName["Bank B"]
	assert.InDelta(t, 800_000, b.Assumptions.LoanAmount, 0.001)
	assert.Zero(t, b.Assumptions.DownPayment)
	assert.Contains(t, b.Pros, "No down payment required")

	std := byName["Standard (20% down)"]
	assert.InDelta(t, 640_000, std.Assumptions.LoanAmount, 0.001)
	assert.InDelta(t, 160_000, std.Assumptions.DownPayment, 0.001)
	assert.InDelta(t, 9.5, std.Assumptions.InterestRate, 0.001)
	assert.Equal(t, 60, std.Assumptions.TenureMonths)
	assert.InDelta(t, 13441.19, std.Calculations.MonthlyPayment, 0.011)
}

func TestCompute_RankingAndSensitivity(t *testing.T) {
	res := Compute(baseInput(), model.DefaultAnalysisConfig())

	require.Len(t, res.Recommendations, 3)
	assert.Equal(t, "Standard (20% down)", res.Recommendations[0].Scenario)
	assert.Equal(t, "Bank A", res.Recommendations[1].Scenario)
	assert.Equal(t, "Bank B", res.Recommendations[2].Scenario)
	assert.Equal(t, 1, res.Recommendations[0].Rank)
	assert.Equal(t, "Standard (20% down)", res.Scenarios[0].Name)

	require.Len(t, res.Sensitivity, 2)
	rate := res.Sensitivity[0]
	assert.Equal(t, model.SensitivityRate, rate.Kind)
	assert.InDelta(t, 10.5, rate.InterestRate, 0.001)
	assert.Greater(t, rate.MonthlyPayment, 13441.19)

	down := res.Sensitivity[1]
	assert.Equal(t, model.SensitivityDownPayment, down.Kind)
	assert.InDelta(t, 560_000, down.LoanAmount, 0.001)
	assert.InDelta(t, 240_000, down.DownPayment, 0.001)
	assert.Less(t, down.MonthlyPayment, 13441.19)

	assert.Equal(t, "11.6%", res.Metrics.DTIIfLoan)
	assert.Equal(t, "40.0%", res.Metrics.DTICap)
	assert.Equal(t, "₹4,000", res.Metrics.ExistingObligations)
	assert.Equal(t, "₹56,000", res.Metrics.MaxAffordableEMI)
}

func TestCompute_Profile(t *testing.T) {
	res := Compute(baseInput(), model.DefaultAnalysisConfig())

	assert.Equal(t, "Asha Rao", res.Profile.Name)
	assert.Equal(t, "36", res.Profile.Age)
	assert.Equal(t, "wife and a son", res.Profile.Dependents)
	assert.Equal(t, "₹150,000", res.Profile.MonthlyIncome)
	assert.Equal(t, "762", res.Credit.Score)
	assert.Equal(t, "Excellent", res.Credit.Band)
	assert.Equal(t, "₹300,000", res.Liquidity.UsableAfterBuffer)
	assert.Empty(t, res.RiskFlags)
}

func TestCompute_MissingDataUsesSentinel(t *testing.T) {
	in := Input{
		Bundle: &model.ProfileBundle{
			Profile: model.Profile{UserID: "u-2"},
			Quotes:  []model.Quote{{LenderName: "Bank C", Amount: 500_000, InterestRate: 0}},
		},
		Now: analysisNow,
	}
	res := Compute(in, model.DefaultAnalysisConfig())

	assert.Equal(t, model.NotAvailable, res.Profile.Name)
	assert.Equal(t, model.NotAvailable, res.Profile.Age)
	assert.Equal(t, model.NotAvailable, res.Profile.MonthlyIncome)
	assert.Equal(t, model.NotAvailable, res.Credit.Score)
	assert.Equal(t, model.NotAvailable, res.Credit.Band)
	assert.Equal(t, model.NotAvailable, res.Liquidity.BankBalance)
	assert.Equal(t, model.NotAvailable, res.Metrics.DTIIfLoan)
	assert.Empty(t, res.Scenarios, "quote with unknown rate is skipped and no purchase means no standard scenario")
	assert.Empty(t, res.Sensitivity)
	assert.Contains(t, res.RiskFlags, "Monthly income is not available; affordability could not be assessed.")
	assert.Contains(t, res.RiskFlags, "No financing scenarios could be computed from the available quotes.")
}

func TestCompute_OverCap(t *testing.T) {
	in := baseInput()
	in.Bundle.Financials.MonthlyIncome = testsupport.Ptr(30_000.0)
	in.Bundle.Financials.BankBalance = testsupport.Ptr(100_000.0)
	res := Compute(in, model.DefaultAnalysisConfig())

	require.NotEmpty(t, res.Scenarios)
	for _, s := range res.Scenarios {
		assert.Equal(t, RiskHigh, s.Risk, s.Name)
	}
	// over-cap scenarios are ordered by DTI, least stretched first
	assert.Equal(t, "Standard (20% down)", res.Recommendations[0].Scenario)
	assert.Contains(t, res.RiskFlags, "Every scenario exceeds the 40.0% debt-to-income cap.")
	assert.Contains(t, res.RiskFlags, "Savings do not cover the emergency buffer.")
}

func TestCreditBandAndRisk(t *testing.T) {
	assert.Equal(t, "Excellent", CreditBand(testsupport.Ptr(750)))
	assert.Equal(t, "Good", CreditBand(testsupport.Ptr(700)))
	assert.Equal(t, "Fair", CreditBand(testsupport.Ptr(650)))
	assert.Equal(t, "Poor", CreditBand(testsupport.Ptr(649)))
	assert.Equal(t, model.NotAvailable, CreditBand(nil))

	assert.Equal(t, RiskLow, RiskFor(testsupport.Ptr(0.30), 0.4))
	assert.Equal(t, RiskModerate, RiskFor(testsupport.Ptr(0.40), 0.4))
	assert.Equal(t, RiskHigh, RiskFor(testsupport.Ptr(0.41), 0.4))
	assert.Equal(t, RiskUnknown, RiskFor(nil, 0.4))
}

func TestCompute_BenchmarkWithoutQuotesOrPurchase(t *testing.T) {
	in := Input{
		Bundle: &model.ProfileBundle{
			Profile:    model.Profile{UserID: "u-3"},
			Financials: model.FinancialSummary{MonthlyIncome: testsupport.Ptr(150_000.0)},
		},
		Now: analysisNow,
	}
	cfg := model.DefaultAnalysisConfig()
	res := Compute(in, cfg)

	require.Len(t, res.Scenarios, 1)
	s := res.Scenarios[0]
	assert.Equal(t, BenchmarkScenario, s.Name)
	assert.InDelta(t, 2_856_800, s.Assumptions.LoanAmount, 0.001)
	assert.Zero(t, s.Assumptions.DownPayment)
	assert.InDelta(t, cfg.DefaultRate, s.Assumptions.InterestRate, 0.001)
	assert.Equal(t, cfg.DefaultTenureMonths, s.Assumptions.TenureMonths)
	assert.LessOrEqual(t, s.Calculations.MonthlyPayment, 60_000.0)
	assert.InDelta(t, 59_998.12, s.Calculations.MonthlyPayment, 0.02)
	require.NotNil(t, s.Calculations.DTI)
	assert.LessOrEqual(t, *s.Calculations.DTI, cfg.DTICap)
	assert.Equal(t, RiskModerate, s.Risk)

	require.Len(t, res.Recommendations, 1)
	assert.Equal(t, BenchmarkScenario, res.Recommendations[0].Scenario)
	require.NotEmpty(t, res.Sensitivity)
	assert.Equal(t, model.SensitivityRate, res.Sensitivity[0].Kind)
	assert.NotContains(t, res.RiskFlags, "No financing scenarios could be computed from the available quotes.")
}

func TestCompute_NoBenchmarkWhenObligationsFillCap(t *testing.T) {
	in := Input{
		Bundle: &model.ProfileBundle{
			Financials: model.FinancialSummary{
				MonthlyIncome: testsupport.Ptr(50_000.0),
				LoansBalance:  testsupport.Ptr(2_000_000.0),
			},
		},
		Now: analysisNow,
	}
	res := Compute(in, model.DefaultAnalysisConfig())
	assert.Empty(t, res.Scenarios)
	assert.Contains(t, res.RiskFlags, "No financing scenarios could be computed from the available quotes.")
}
