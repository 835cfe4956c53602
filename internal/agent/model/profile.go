package model

import "time"

// NotAvailable is rendered in place of any missing external value.
const NotAvailable = "not available"

// Profile is the identity part of the external user profile.
type Profile struct {
	UserID      string     `json:"user_id"`
	FullName    string     `json:"full_name,omitempty"`
	Email       string     `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Occupation  string     `json:"occupation,omitempty"`
}

// Age derives the age in whole years at the given instant.
func (p Profile) Age(now time.Time) (int, bool) {
	if p.DateOfBirth == nil || p.DateOfBirth.IsZero() || p.DateOfBirth.After(now) {
		return 0, false
	}
	dob := *p.DateOfBirth
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age, true
}

// FinancialSummary holds bureau and banking figures. Every field is optional.
type FinancialSummary struct {
	CreditScoreName  string   `json:"credit_score_name,omitempty"`
	CreditScore      *int     `json:"credit_score,omitempty"`
	MonthlyIncome    *float64 `json:"monthly_income,omitempty"`
	ActiveLoansCount *int     `json:"active_loans_count,omitempty"`
	LoansBalance     *float64 `json:"loans_balance,omitempty"`
	LoansPastDue     *float64 `json:"loans_past_due,omitempty"`
	BankBalance      *float64 `json:"bank_balance,omitempty"`
	Investments      *float64 `json:"investments,omitempty"`
}

// Quote is an externally supplied financing offer.
type Quote struct {
	LenderName     string  `json:"lender_name"`
	Amount         float64 `json:"amount"`
	TenureMonths   int     `json:"tenure_months"`
	InterestRate   float64 `json:"interest_rate"`
	MonthlyPayment float64 `json:"monthly_payment"`
}

// ProfileBundle is everything the external profile store returns for a user.
type ProfileBundle struct {
	Profile    Profile          `json:"profile"`
	Financials FinancialSummary `json:"financials"`
	Quotes     []Quote          `json:"quotes"`
}
