package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

// Risk labels by debt-to-income.
const (
	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskHigh     = "High"
	RiskUnknown  = "Unknown"
)

const (
	lowRiskDTI = 0.30
	// obligationRate estimates existing monthly EMIs from the outstanding balance.
	obligationRate = 0.02
	rateShiftPP    = 1.0
	downShiftRatio = 0.10

	// benchmarkStep rounds the affordability benchmark loan down.
	benchmarkStep = 100
)

// BenchmarkScenario names the scenario derived from the maximum affordable EMI.
const BenchmarkScenario = "Affordability benchmark"

// Input is everything the deterministic analysis needs.
type Input struct {
	Bundle         *model.ProfileBundle
	Info           model.PartialInfo
	PurchaseAmount *float64
	Now            time.Time
}

// scenarioCalc keeps decimal values next to the rendered scenario for ranking
// and sensitivity.
type scenarioCalc struct {
	scenario model.Scenario
	loan     decimal.Decimal
	down     decimal.Decimal
	rate     decimal.Decimal
	tenure   int
	amort    amortization
	dti      *float64
}

// Compute builds the structured analysis. It performs no I/O and is
// deterministic for a given input and config.
func Compute(in Input, cfg model.AnalysisConfig) *model.AnalysisResult {
	bundle := in.Bundle
	if bundle == nil {
		bundle = &model.ProfileBundle{}
	}
	fin := bundle.Financials
	res := &model.AnalysisResult{
		GeneratedAt:     in.Now,
		Scenarios:       []model.Scenario{},
		Recommendations: []model.Recommendation{},
		Sensitivity:     []model.SensitivityVariant{},
		RiskFlags:       []string{},
		Notes:           []string{},
	}

	res.Profile = profileSummary(bundle.Profile, fin, in)
	res.Credit = creditAssessment(fin)
	res.Liabilities = model.LiabilitySummary{
		ActiveLoans:      model.FormatInt(fin.ActiveLoansCount),
		TotalOutstanding: model.FormatAmount(fin.LoansBalance),
		PastDue:          model.FormatAmount(fin.LoansPastDue),
	}

	income, incomeKnown := dec(fin.MonthlyIncome)
	outstanding, _ := dec(fin.LoansBalance)
	bank, bankKnown := dec(fin.BankBalance)
	dtiCap := decimal.NewFromFloat(cfg.DTICap)

	existing := outstanding.Mul(decimal.NewFromFloat(obligationRate)).Round(2)
	res.Metrics.ExistingObligations = model.FormatAmount(moneyPtr(existing))
	res.Metrics.DTICap = model.FormatPercent(&cfg.DTICap)
	res.Metrics.MonthlySurplus = model.NotAvailable
	res.Metrics.MaxAffordableEMI = model.NotAvailable
	res.Metrics.DTIIfLoan = model.NotAvailable
	maxEMI := decimal.Zero
	if incomeKnown {
		res.Metrics.MonthlySurplus = model.FormatAmount(moneyPtr(income.Sub(existing)))
		maxEMI = decimal.Max(income.Mul(dtiCap).Sub(existing), decimal.Zero)
		res.Metrics.MaxAffordableEMI = model.FormatAmount(moneyPtr(maxEMI))
	}

	res.Liquidity = model.LiquiditySummary{
		BankBalance:           model.FormatAmount(fin.BankBalance),
		Investments:           model.FormatAmount(fin.Investments),
		UsableAfterBuffer:     model.NotAvailable,
		EmergencyBufferMonths: cfg.BufferMonths,
	}
	reserve := income.Mul(decimal.NewFromInt(int64(cfg.BufferMonths)))
	usable := decimal.Zero
	if bankKnown && incomeKnown {
		usable = bank.Sub(reserve)
		res.Liquidity.UsableAfterBuffer = model.FormatAmount(moneyPtr(decimal.Max(usable, decimal.Zero)))
	}

	calcs := buildScenarios(bundle.Quotes, in.PurchaseAmount, cfg, income, incomeKnown, existing, bank, bankKnown)
	if len(calcs) == 0 {
		if c := benchmarkScenario(maxEMI, cfg, income, existing, bank, bankKnown); c != nil {
			calcs = append(calcs, c)
			res.Notes = append(res.Notes, "No quotes or purchase amount were available; the benchmark loan is the largest one whose instalment fits the debt-to-income cap.")
		}
	}
	rank(calcs, cfg.DTICap)
	for _, c := range calcs {
		res.Scenarios = append(res.Scenarios, c.scenario)
	}
	annotate(res.Scenarios, calcs, cfg.DTICap)

	for i, c := range calcs {
		res.Recommendations = append(res.Recommendations, recommendation(i+1, c, cfg.DTICap))
	}
	if len(calcs) > 0 {
		best := calcs[0]
		res.Metrics.DTIIfLoan = model.FormatPercent(best.dti)
		res.Sensitivity = sensitivity(best, in.PurchaseAmount)
	}

	res.RiskFlags = riskFlags(res, calcs, fin, incomeKnown, bankKnown, usable, cfg.DTICap)
	res.Notes = append(res.Notes,
		fmt.Sprintf("Existing monthly obligations are estimated at %.0f%% of the outstanding loan balance.", obligationRate*100),
		fmt.Sprintf("Emergency buffer assumes %d months of income held in reserve.", cfg.BufferMonths),
	)
	if in.PurchaseAmount == nil {
		res.Notes = append(res.Notes, "Purchase amount was not provided; quote amounts are used as loan amounts.")
	}
	return res
}

func profileSummary(p model.Profile, fin model.FinancialSummary, in Input) model.ProfileSummary {
	ps := model.ProfileSummary{
		Name:          orNA(p.FullName),
		Age:           model.NotAvailable,
		Occupation:    orNA(p.Occupation),
		Dependents:    orNA(in.Info.Dependents),
		MonthlyIncome: model.FormatAmount(fin.MonthlyIncome),
		IncomeNotes:   orNA(in.Info.Income),
		PurchaseGoal:  in.PurchaseAmount,
	}
	if age, ok := p.Age(in.Now); ok {
		ps.Age = fmt.Sprintf("%d", age)
	}
	return ps
}

// CreditBand maps a bureau score to a band label.
func CreditBand(score *int) string {
	switch {
	case score == nil:
		return model.NotAvailable
	case *score >= 750:
		return "Excellent"
	case *score >= 700:
		return "Good"
	case *score >= 650:
		return "Fair"
	default:
		return "Poor"
	}
}

func creditAssessment(fin model.FinancialSummary) model.CreditAssessment {
	ca := model.CreditAssessment{
		Score: model.FormatInt(fin.CreditScore),
		Band:  CreditBand(fin.CreditScore),
		Notes: []string{},
	}
	if fin.CreditScoreName != "" && fin.CreditScore != nil {
		ca.Notes = append(ca.Notes, fmt.Sprintf("Score reported by %s.", fin.CreditScoreName))
	}
	switch ca.Band {
	case "Excellent", "Good":
		ca.Notes = append(ca.Notes, "Eligible for most lenders' best published rates.")
	case "Fair":
		ca.Notes = append(ca.Notes, "Expect rates above the best published offers.")
	case "Poor":
		ca.Notes = append(ca.Notes, "A co-applicant or secured loan may be required.")
	}
	if fin.LoansPastDue != nil && *fin.LoansPastDue > 0 {
		ca.Notes = append(ca.Notes, "Past-due amounts on existing loans weigh on approval.")
	}
	return ca
}

func buildScenarios(
	quotes []model.Quote,
	purchase *float64,
	cfg model.AnalysisConfig,
	income decimal.Decimal, incomeKnown bool,
	existing decimal.Decimal,
	bank decimal.Decimal, bankKnown bool,
) []*scenarioCalc {
	var out []*scenarioCalc
	price, priceKnown := dec(purchase)

	add := func(name, lender string, loan, down, rate decimal.Decimal, tenure int) {
		out = append(out, newScenario(name, lender, loan, down, rate, tenure, income, incomeKnown, existing, bank, bankKnown))
	}

	for i, q := range quotes {
		if q.InterestRate <= 0 || q.Amount <= 0 {
			continue
		}
		tenure := q.TenureMonths
		if tenure <= 0 {
			tenure = cfg.DefaultTenureMonths
		}
		loan := decimal.NewFromFloat(q.Amount)
		down := decimal.Zero
		if priceKnown {
			loan = decimal.Min(loan, price)
			down = price.Sub(loan)
		}
		lender := strings.TrimSpace(q.LenderName)
		if lender == "" {
			lender = fmt.Sprintf("Quote %d", i+1)
		}
		add(lender, lender, loan, down, decimal.NewFromFloat(q.InterestRate), tenure)
	}

	if priceKnown && price.Sign() > 0 && cfg.DefaultRate > 0 {
		down := price.Mul(decimal.NewFromFloat(cfg.DownPaymentRatio)).Round(2)
		name := fmt.Sprintf("Standard (%.0f%% down)", cfg.DownPaymentRatio*100)
		add(name, "", price.Sub(down), down, decimal.NewFromFloat(cfg.DefaultRate), cfg.DefaultTenureMonths)
	}
	return out
}

func newScenario(
	name, lender string,
	loan, down, rate decimal.Decimal, tenure int,
	income decimal.Decimal, incomeKnown bool,
	existing decimal.Decimal,
	bank decimal.Decimal, bankKnown bool,
) *scenarioCalc {
	c := &scenarioCalc{loan: loan, down: down, rate: rate, tenure: tenure}
	c.amort = amortize(loan, rate, tenure)
	if incomeKnown {
		c.dti = ratio(existing.Add(c.amort.MonthlyPayment), income)
	}
	c.scenario = model.Scenario{
		Name: name,
		Assumptions: model.ScenarioAssumptions{
			Lender:       lender,
			DownPayment:  money(down),
			LoanAmount:   money(loan),
			InterestRate: rate.Round(2).InexactFloat64(),
			TenureMonths: tenure,
		},
		Calculations: model.ScenarioCalculations{
			MonthlyPayment: money(c.amort.MonthlyPayment),
			TotalInterest:  money(c.amort.TotalInterest),
			TotalPayable:   money(c.amort.TotalPayable),
			DTI:            c.dti,
		},
		Pros: []string{},
		Cons: []string{},
	}
	if bankKnown {
		c.scenario.Calculations.BufferAfterDownPayment = moneyPtr(bank.Sub(down))
	}
	return c
}

// benchmarkScenario works back from the maximum affordable EMI to a loan at
// the default rate and tenure. It is used when neither quotes nor a purchase
// amount produce a scenario. The instalment target is kept one rupee under the
// cap and the loan rounded down so the scenario stays within it. nil means no
// affordable loan exists.
func benchmarkScenario(
	maxEMI decimal.Decimal,
	cfg model.AnalysisConfig,
	income decimal.Decimal,
	existing decimal.Decimal,
	bank decimal.Decimal, bankKnown bool,
) *scenarioCalc {
	if cfg.DefaultRate <= 0 || cfg.DefaultTenureMonths <= 0 {
		return nil
	}
	rate := decimal.NewFromFloat(cfg.DefaultRate)
	step := decimal.NewFromInt(benchmarkStep)
	loan := PrincipalFor(maxEMI.Sub(one), rate, cfg.DefaultTenureMonths).Div(step).Floor().Mul(step)
	if loan.Sign() <= 0 {
		return nil
	}
	return newScenario(BenchmarkScenario, "", loan, decimal.Zero, rate, cfg.DefaultTenureMonths, income, true, existing, bank, bankKnown)
}

// rank orders scenarios: those within the DTI cap first by total interest,
// then unknown DTI by total interest, then over-cap scenarios by DTI.
func rank(calcs []*scenarioCalc, dtiCap float64) {
	group := func(c *scenarioCalc) int {
		switch {
		case c.dti == nil:
			return 1
		case *c.dti <= dtiCap:
			return 0
		default:
			return 2
		}
	}
	sort.SliceStable(calcs, func(i, j int) bool {
		a, b := calcs[i], calcs[j]
		ga, gb := group(a), group(b)
		if ga != gb {
			return ga < gb
		}
		if ga == 2 && *a.dti != *b.dti {
			return *a.dti < *b.dti
		}
		if !a.amort.TotalInterest.Equal(b.amort.TotalInterest) {
			return a.amort.TotalInterest.LessThan(b.amort.TotalInterest)
		}
		return a.amort.MonthlyPayment.LessThan(b.amort.MonthlyPayment)
	})
}

// RiskFor maps a DTI to a risk label.
func RiskFor(dti *float64, dtiCap float64) string {
	switch {
	case dti == nil:
		return RiskUnknown
	case *dti <= lowRiskDTI:
		return RiskLow
	case *dti <= dtiCap:
		return RiskModerate
	default:
		return RiskHigh
	}
}

func annotate(scenarios []model.Scenario, calcs []*scenarioCalc, dtiCap float64) {
	if len(calcs) == 0 {
		return
	}
	minEMI, minInterest := calcs[0].amort.MonthlyPayment, calcs[0].amort.TotalInterest
	for _, c := range calcs[1:] {
		minEMI = decimal.Min(minEMI, c.amort.MonthlyPayment)
		minInterest = decimal.Min(minInterest, c.amort.TotalInterest)
	}

	for i, c := range calcs {
		s := &scenarios[i]
		s.Risk = RiskFor(c.dti, dtiCap)
		switch s.Risk {
		case RiskLow:
			s.RiskNote = fmt.Sprintf("Instalments take %s of income, leaving comfortable headroom.", model.FormatPercent(c.dti))
		case RiskModerate:
			s.RiskNote = fmt.Sprintf("Instalments take %s of income; manageable but leaves limited headroom.", model.FormatPercent(c.dti))
		case RiskHigh:
			s.RiskNote = fmt.Sprintf("Instalments take %s of income, above the %s cap.", model.FormatPercent(c.dti), model.FormatPercent(&dtiCap))
		default:
			s.RiskNote = "Income is not available, so affordability could not be assessed."
		}

		if c.amort.MonthlyPayment.Equal(minEMI) && len(calcs) > 1 {
			s.Pros = append(s.Pros, "Lowest monthly payment")
		}
		if c.amort.TotalInterest.Equal(minInterest) && len(calcs) > 1 {
			s.Pros = append(s.Pros, "Lowest total interest")
		}
		if c.down.Sign() == 0 {
			s.Pros = append(s.Pros, "No down payment required")
		} else {
			s.Cons = append(s.Cons, fmt.Sprintf("Requires a down payment of %s", model.FormatAmount(moneyPtr(c.down))))
		}
		if c.dti != nil && *c.dti <= dtiCap {
			s.Pros = append(s.Pros, fmt.Sprintf("Within the %s debt-to-income cap", model.FormatPercent(&dtiCap)))
		}
		if c.dti != nil && *c.dti > dtiCap {
			s.Cons = append(s.Cons, "Debt-to-income above the cap")
		}
		if buf := s.Calculations.BufferAfterDownPayment; buf != nil && *buf < 0 {
			s.Cons = append(s.Cons, "Down payment exceeds current bank balance")
		}
		if c.tenure > 60 {
			s.Cons = append(s.Cons, "Long tenure increases total interest paid")
		}
	}
}

func recommendation(rankNo int, c *scenarioCalc, dtiCap float64) model.Recommendation {
	r := model.Recommendation{
		Rank:     rankNo,
		Scenario: c.scenario.Name,
		Rationale: []string{
			fmt.Sprintf("Monthly payment of %s over %d months.", model.FormatAmount(moneyPtr(c.amort.MonthlyPayment)), c.tenure),
			fmt.Sprintf("Total interest of %s.", model.FormatAmount(moneyPtr(c.amort.TotalInterest))),
		},
		NextSteps: []string{},
	}
	if c.dti != nil {
		r.Rationale = append(r.Rationale, fmt.Sprintf("Debt-to-income of %s against a %s cap.", model.FormatPercent(c.dti), model.FormatPercent(&dtiCap)))
	}
	if lender := c.scenario.Assumptions.Lender; lender != "" {
		r.NextSteps = append(r.NextSteps, fmt.Sprintf("Request a formal sanction letter from %s.", lender))
	} else {
		r.NextSteps = append(r.NextSteps, "Compare this benchmark against lender quotes before applying.")
	}
	if c.down.Sign() > 0 {
		r.NextSteps = append(r.NextSteps, fmt.Sprintf("Set aside %s for the down payment.", model.FormatAmount(moneyPtr(c.down))))
	}
	if c.dti != nil && *c.dti > dtiCap {
		r.NextSteps = append(r.NextSteps, "Consider a larger down payment or a longer tenure to bring the instalment within the cap.")
	}
	return r
}

func sensitivity(best *scenarioCalc, purchase *float64) []model.SensitivityVariant {
	base := best.amort.MonthlyPayment
	out := []model.SensitivityVariant{}

	shifted := best.rate.Add(decimal.NewFromFloat(rateShiftPP))
	emi := EMI(best.loan, shifted, best.tenure)
	out = append(out, model.SensitivityVariant{
		Kind:           model.SensitivityRate,
		FromScenario:   best.scenario.Name,
		Shift:          fmt.Sprintf("+%.0f pp interest rate", rateShiftPP),
		InterestRate:   shifted.Round(2).InexactFloat64(),
		DownPayment:    money(best.down),
		LoanAmount:     money(best.loan),
		MonthlyPayment: money(emi),
		Impact:         fmt.Sprintf("EMI rises by %s per month.", model.FormatAmount(moneyPtr(emi.Sub(base)))),
	})

	if price, ok := dec(purchase); ok && price.Sign() > 0 {
		extra := price.Mul(decimal.NewFromFloat(downShiftRatio)).Round(2)
		loan := decimal.Max(best.loan.Sub(extra), decimal.Zero)
		down := best.down.Add(best.loan.Sub(loan))
		emi := EMI(loan, best.rate, best.tenure)
		out = append(out, model.SensitivityVariant{
			Kind:           model.SensitivityDownPayment,
			FromScenario:   best.scenario.Name,
			Shift:          fmt.Sprintf("+%.0f%% of purchase price as down payment", downShiftRatio*100),
			InterestRate:   best.rate.Round(2).InexactFloat64(),
			DownPayment:    money(down),
			LoanAmount:     money(loan),
			MonthlyPayment: money(emi),
			Impact:         fmt.Sprintf("EMI falls by %s per month.", model.FormatAmount(moneyPtr(base.Sub(emi)))),
		})
	}
	return out
}

func riskFlags(
	res *model.AnalysisResult,
	calcs []*scenarioCalc,
	fin model.FinancialSummary,
	incomeKnown, bankKnown bool,
	usable decimal.Decimal,
	dtiCap float64,
) []string {
	flags := []string{}
	if !incomeKnown {
		flags = append(flags, "Monthly income is not available; affordability could not be assessed.")
	}
	if len(calcs) == 0 {
		flags = append(flags, "No financing scenarios could be computed from the available quotes.")
	} else if best := calcs[0]; best.dti != nil && *best.dti > dtiCap {
		flags = append(flags, fmt.Sprintf("Every scenario exceeds the %s debt-to-income cap.", model.FormatPercent(&dtiCap)))
	}
	if res.Credit.Band == "Poor" {
		flags = append(flags, "Credit score below 650 may limit offers.")
	}
	if fin.LoansPastDue != nil && *fin.LoansPastDue > 0 {
		flags = append(flags, "Existing loans have past-due amounts.")
	}
	if bankKnown && incomeKnown && usable.Sign() <= 0 {
		flags = append(flags, "Savings do not cover the emergency buffer.")
	}
	return flags
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.NotAvailable
	}
	return strings.TrimSpace(s)
}
