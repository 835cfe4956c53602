package extractor

import (
	"regexp"

	"github.com/finbuddy-intake-core/server/internal/agent/graph/parsers"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
)

var (
	incomeKeywords = regexp.MustCompile(`(?i)\b(?:income|salary|salaried|earn|earns|earning|earnings|paid|ctc|take[- ]home|wage|wages|stipend|pension|per month|monthly)\b`)

	expenseKeywords = regexp.MustCompile(`(?i)\b(?:expense|expenses|spend|spending|upcoming|emi|emis|rent|fee|fees|tuition|wedding|bills?|medical|renovation|trip)\b`)

	dependentKeywords = regexp.MustCompile(`(?i)\b(?:dependent|dependents|dependant|dependants|kid|kids|child|children|son|daughter|wife|husband|spouse|parents|mother|father|family|single)\b`)
)

// Fallback is the deterministic heuristic used when the extraction model
// fails. It concatenates the user's utterances and assigns the whole text to
// every category whose keyword set matches. It never fails; an empty
// transcript yields an empty result.
func Fallback(transcript []model.Message) Result {
	res := Result{Source: SourceFallback}
	text := model.UserText(transcript)
	if text == "" {
		return res
	}

	if incomeKeywords.MatchString(text) {
		res.Info.Income = text
	}
	if expenseKeywords.MatchString(text) {
		res.Info.UpcomingExpenses = text
	}
	if dependentKeywords.MatchString(text) {
		res.Info.Dependents = text
	}
	if v, ok := parsers.FindPurchaseAmount(text); ok {
		res.PurchaseAmount = &v
	}
	res.AllInfoCollected = res.Info.Complete()
	return res
}
