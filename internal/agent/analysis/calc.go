package analysis

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
	one     = decimal.NewFromInt(1)
)

// workingPrecision is the number of decimal places kept between steps.
const workingPrecision = 20

// EMI returns the standard amortised monthly instalment for a principal at an
// annual percentage rate over months, rounded to paise:
//
//	P * r * (1+r)^n / ((1+r)^n - 1),  r = rate / 12 / 100
//
// A zero rate divides the principal evenly.
func EMI(principal, annualRatePct decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 || principal.Sign() <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(months))
	if annualRatePct.Sign() <= 0 {
		return principal.DivRound(n, 2)
	}
	r := annualRatePct.Div(twelve).Div(hundred)
	growth := powInt(one.Add(r), months)
	num := principal.Mul(r).Mul(growth)
	den := growth.Sub(one)
	return num.DivRound(den, 2)
}

// PrincipalFor inverts EMI: the largest principal whose instalment at the
// given rate and tenure is emi, before rounding.
func PrincipalFor(emi, annualRatePct decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 || emi.Sign() <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(months))
	if annualRatePct.Sign() <= 0 {
		return emi.Mul(n)
	}
	r := annualRatePct.Div(twelve).Div(hundred)
	growth := powInt(one.Add(r), months)
	return emi.Mul(growth.Sub(one)).DivRound(r.Mul(growth), workingPrecision)
}

// powInt raises base to a non-negative integer power, rounding each step.
func powInt(base decimal.Decimal, exp int) decimal.Decimal {
	result := one
	for i := 0; i < exp; i++ {
		result = result.Mul(base).Round(workingPrecision)
	}
	return result
}

// amortization holds the computed totals for a loan.
type amortization struct {
	MonthlyPayment decimal.Decimal
	TotalPayable   decimal.Decimal
	TotalInterest  decimal.Decimal
}

func amortize(principal, annualRatePct decimal.Decimal, months int) amortization {
	emi := EMI(principal, annualRatePct, months)
	total := emi.Mul(decimal.NewFromInt(int64(months))).Round(2)
	interest := total.Sub(principal).Round(2)
	if interest.Sign() < 0 {
		interest = decimal.Zero
	}
	return amortization{MonthlyPayment: emi, TotalPayable: total, TotalInterest: interest}
}

// ratio returns num/den as a float, or nil when den is not positive.
func ratio(num, den decimal.Decimal) *float64 {
	if den.Sign() <= 0 {
		return nil
	}
	v := num.DivRound(den, 6).InexactFloat64()
	return &v
}

func dec(v *float64) (decimal.Decimal, bool) {
	if v == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*v), true
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func moneyPtr(d decimal.Decimal) *float64 {
	v := money(d)
	return &v
}
