package parsers

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	lakh  = 100_000
	crore = 10_000_000
)

// minBareAmount is the smallest unitless figure the transcript scan treats as
// a purchase amount. Smaller numbers are usually counts ("2 kids").
const minBareAmount = 1000

var (
	// whole-value form: optional currency marker, number, optional unit word
	amountValueRe = regexp.MustCompile(`^(?:₹|rs\.?|inr)?\s*(\d[\d,]*(?:\.\d+)?)\s*([a-z]+)?\.?$`)

	// scan form used inside free text
	amountScanRe = regexp.MustCompile(`(?i)(?:₹|\brs\.?|\binr)?\s*(\d[\d,]*(?:\.\d+)?)(?:\s*([a-z]+))?`)

	trailingCurrencyRe = regexp.MustCompile(`\s+(?:rupees?|rs\.?|inr)$`)
	sentenceSplitRe    = regexp.MustCompile(`[.!?]+\s+|\n+`)
	rsAbbrevRe         = regexp.MustCompile(`\brs\.\s*`)

	// a figure followed by one of these is an income or a rate, not a price
	periodicTailRe = regexp.MustCompile(`^\s*(?:lakhs?|lacs?|crores?|cr|rupees?|rs|inr)?\s*(?:per\s+(?:month|year|annum)|a\s+(?:month|year)|every\s+month|monthly|yearly|annually|salary|income|pm\b|p\.a\b)`)
)

var purchaseCues = []string{
	"buy", "purchase", "car", "house", "worth", "price", "cost of", "budget", "loan for",
}

// tieWords bind a unitless figure that follows them to the purchase.
var tieWords = map[string]struct{}{
	"worth": {}, "for": {}, "costs": {}, "cost": {}, "costing": {}, "priced": {},
	"around": {}, "about": {}, "approx": {}, "approximately": {}, "roughly": {},
}

// priceNouns bind a figure through a copula: "the price is 700000".
var priceNouns = map[string]struct{}{
	"price": {}, "cost": {}, "budget": {}, "amount": {}, "value": {},
}

var copulas = map[string]struct{}{
	"is": {}, "of": {}, "was": {}, "be": {},
}

// unitMultiplier returns the multiplier for a unit word. ok is false when the
// unit is present but not a recognised currency unit.
func unitMultiplier(unit string) (mult float64, ok bool) {
	switch unit {
	case "":
		return 1, true
	case "lakh", "lakhs", "lac", "lacs":
		return lakh, true
	case "crore", "crores", "cr":
		return crore, true
	case "rupee", "rupees", "rs", "inr":
		return 1, true
	}
	return 0, false
}

func parseDigits(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseAmount normalises a currency phrase to base units.
//
//	"45 lakh"    -> 4500000
//	"1.2 crore"  -> 12000000
//	"45,00,000"  -> 4500000
//	"4500000"    -> 4500000
//
// A bare suffix letter ("45L", "45k"), an unknown unit or a unit without a
// number is ambiguous and yields ok=false.
func ParseAmount(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	s = trailingCurrencyRe.ReplaceAllString(s, "")
	m := amountValueRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	mult, ok := unitMultiplier(m[2])
	if !ok {
		return 0, false
	}
	v, ok := parseDigits(m[1])
	if !ok {
		return 0, false
	}
	return v * mult, true
}

// FindPurchaseAmount scans free text for a purchase amount. Only sentences
// that carry a purchase cue are considered and only figures after the cue are
// read; the most recent such sentence wins. A figure without a lakh/crore unit
// must carry a currency marker or directly follow a binding word ("worth N",
// "costs N"). Years and periodic figures ("80000 per month") are never taken.
func FindPurchaseAmount(text string) (float64, bool) {
	text = rsAbbrevRe.ReplaceAllString(strings.ToLower(text), "rs ")
	sentences := sentenceSplitRe.Split(text, -1)
	for i := len(sentences) - 1; i >= 0; i-- {
		sentence := sentences[i]
		cueAt := firstCue(sentence)
		if cueAt < 0 {
			continue
		}
		if v, ok := scanAmount(sentence, cueAt); ok {
			return v, true
		}
	}
	return 0, false
}

func firstCue(sentence string) int {
	best := -1
	for _, cue := range purchaseCues {
		if idx := indexWord(sentence, cue); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	return best
}

func scanAmount(sentence string, from int) (float64, bool) {
	for _, loc := range amountScanRe.FindAllStringSubmatchIndex(sentence[from:], -1) {
		start, digitsEnd := from+loc[0], from+loc[3]
		digits := sentence[from+loc[2] : digitsEnd]
		unit := ""
		if loc[4] >= 0 {
			unit = sentence[from+loc[4] : from+loc[5]]
		}
		if periodicTailRe.MatchString(sentence[digitsEnd:]) {
			continue
		}
		v, ok := parseDigits(digits)
		if !ok {
			continue
		}

		mult, ok := unitMultiplier(unit)
		if !ok {
			// "45l", "45k": ambiguous; "2 kids": a bare figure
			if _, isUnit := ambiguousSuffixes[unit]; isUnit {
				continue
			}
			mult, unit = 1, ""
		}
		if mult > 1 {
			return v * mult, true
		}

		marked := unit != "" || strings.TrimSpace(sentence[start:from+loc[2]]) != ""
		if v < minBareAmount || (!marked && isYear(v)) {
			continue
		}
		if marked || tiedToPurchase(sentence[:start]) {
			return v, true
		}
	}
	return 0, false
}

// tiedToPurchase reports whether the words right before a figure bind it to
// the purchase.
func tiedToPurchase(before string) bool {
	words := strings.FieldsFunc(before, func(r rune) bool {
		return r == ' ' || r == ',' || r == ':' || r == '\t'
	})
	if len(words) == 0 {
		return false
	}
	last := words[len(words)-1]
	if _, ok := tieWords[last]; ok {
		return true
	}
	if len(words) < 2 {
		return false
	}
	_, copula := copulas[last]
	_, noun := priceNouns[words[len(words)-2]]
	return copula && noun
}

func isYear(v float64) bool {
	return v == float64(int(v)) && v >= 1900 && v <= 2100
}

var ambiguousSuffixes = map[string]struct{}{
	"l": {}, "k": {}, "m": {}, "mn": {}, "b": {}, "bn": {},
}

// indexWord finds needle in s at word boundaries.
func indexWord(s, needle string) int {
	offset := 0
	for {
		idx := strings.Index(s[offset:], needle)
		if idx < 0 {
			return -1
		}
		start := offset + idx
		end := start + len(needle)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return start
		}
		offset = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
