package collection

import (
	"strings"
	"unicode"
)

// ConfirmationQuestion is appended when intake is complete and the model's
// reply did not already ask for confirmation.
const ConfirmationQuestion = "I have everything I need. Shall I analyze your loan options now?"

// ApologyReply is returned when the conversation model is unavailable.
const ApologyReply = "Sorry, I'm having trouble responding right now. Could you please say that again in a moment?"

var confirmationPhrases = []string{
	"shall i analyze",
	"shall i analyse",
	"should i analyze",
	"should i analyse",
	"ready to analyze",
	"ready to analyse",
	"would you like me to analyze",
	"do you want me to analyze",
	"can i go ahead and analyze",
}

var affirmatives = []string{
	"yes", "yeah", "yep", "sure", "okay", "ok", "proceed", "go ahead", "analyze", "analyse", "please do",
}

var negations = []string{
	"no", "not", "don't", "dont", "wait", "hold on",
}

// AsksForConfirmation reports whether reply already contains a confirmation question.
func AsksForConfirmation(reply string) bool {
	lower := strings.ToLower(reply)
	for _, p := range confirmationPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsAffirmative reports whether an utterance agrees to proceed. Matching is
// on whole words; an utterance that also carries a negation is not affirmative.
func IsAffirmative(utterance string) bool {
	padded := " " + strings.Join(words(utterance), " ") + " "
	if strings.TrimSpace(padded) == "" {
		return false
	}
	if containsAny(padded, negations) {
		return false
	}
	return containsAny(padded, affirmatives)
}

func containsAny(padded string, set []string) bool {
	for _, w := range set {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

// words lowercases s and splits it into letter/apostrophe runs.
func words(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
