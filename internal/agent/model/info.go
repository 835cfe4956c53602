package model

import "strings"

// Intake slot names, used in prompts, logs and fallback heuristics.
const (
	SlotIncome           = "income"
	SlotUpcomingExpenses = "upcoming_expenses"
	SlotDependents       = "dependents"
	SlotAdditional       = "additional"
)

// PartialInfo is the four-slot intake record. An empty string means the slot
// is unset; values are natural-language excerpts from the conversation.
type PartialInfo struct {
	Income           string `json:"income,omitempty"`
	UpcomingExpenses string `json:"upcoming_expenses,omitempty"`
	Dependents       string `json:"dependents,omitempty"`
	Additional       string `json:"additional,omitempty"`
}

// Complete reports whether the three required slots are all set.
// Additional is optional.
func (p PartialInfo) Complete() bool {
	return isSet(p.Income) && isSet(p.UpcomingExpenses) && isSet(p.Dependents)
}

// Missing lists the required slots that are still unset, in prompt order.
func (p PartialInfo) Missing() []string {
	var out []string
	if !isSet(p.Income) {
		out = append(out, SlotIncome)
	}
	if !isSet(p.UpcomingExpenses) {
		out = append(out, SlotUpcomingExpenses)
	}
	if !isSet(p.Dependents) {
		out = append(out, SlotDependents)
	}
	return out
}

// Empty reports whether no slot is set.
func (p PartialInfo) Empty() bool {
	return !isSet(p.Income) && !isSet(p.UpcomingExpenses) && !isSet(p.Dependents) && !isSet(p.Additional)
}

// Merge returns p updated field by field from next: a set field in next
// overwrites, an unset field in next leaves the existing value untouched.
func (p PartialInfo) Merge(next PartialInfo) PartialInfo {
	return PartialInfo{
		Income:           pick(p.Income, next.Income),
		UpcomingExpenses: pick(p.UpcomingExpenses, next.UpcomingExpenses),
		Dependents:       pick(p.Dependents, next.Dependents),
		Additional:       pick(p.Additional, next.Additional),
	}
}

// MergeAmount applies the same precedence to the purchase amount: a new value
// overwrites, nil never clears a previous one.
func MergeAmount(prev, next *float64) *float64 {
	if next == nil {
		return prev
	}
	v := *next
	return &v
}

func pick(prev, next string) string {
	if isSet(next) {
		return strings.TrimSpace(next)
	}
	return prev
}

func isSet(s string) bool {
	return strings.TrimSpace(s) != ""
}
