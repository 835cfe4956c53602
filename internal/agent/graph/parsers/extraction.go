package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// ExtractionSchemaVersion is the only payload version the extraction prompt emits.
const ExtractionSchemaVersion = 1

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024 // 16KB
	maxFieldLen   = 2000      // characters per slot
	maxErrSnippet = 200       // limit error snippet size
)

// ErrInvalidExtraction marks a payload that failed validation. The whole
// payload is rejected; callers fall back to heuristics.
var ErrInvalidExtraction = errors.New("invalid extraction payload")

// placeholder values the model sometimes emits instead of null
var nullish = map[string]struct{}{
	"null":          {},
	"n/a":           {},
	"unknown":       {},
	"not provided":  {},
	"not mentioned": {},
}

type extractionPayload struct {
	SchemaVersion    *int    `json:"schema_version"`
	Income           *string `json:"income"`
	UpcomingExpenses *string `json:"upcoming_expenses"`
	Dependents       *string `json:"dependents"`
	Additional       *string `json:"additional"`
	PurchaseAmount   *string `json:"purchase_amount"`
}

// Extraction is a validated extractor result.
type Extraction struct {
	Info              model.PartialInfo
	PurchaseAmount    *float64
	PurchaseAmountRaw string
}

// ParseExtraction validates extractor model output against schema version 1.
// Markdown code fences around the object are tolerated; anything else outside
// the object, unknown fields, wrong types, invalid UTF-8 and oversize values
// are rejected.
func ParseExtraction(content string) (out *Extraction, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "extraction_parser").Msgf("panic recovered: %v", r)
			out = nil
			err = fmt.Errorf("%w: parser panic", ErrInvalidExtraction)
		}
	}()

	if len(content) > maxContentLen {
		return nil, invalid("content exceeds %d bytes", maxContentLen)
	}
	if !utf8.ValidString(content) {
		return nil, invalid("content is not valid utf8")
	}

	body := stripCodeFence(content)
	if body == "" {
		return nil, invalid("empty content")
	}
	if body[0] != '{' || body[len(body)-1] != '}' {
		return nil, invalid("not a json object: %s", safeSnippet(body))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var p extractionPayload
	if err := dec.Decode(&p); err != nil {
		return nil, invalid("decode: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, invalid("trailing data after object")
	}

	if p.SchemaVersion == nil {
		return nil, invalid("schema_version missing")
	}
	if *p.SchemaVersion != ExtractionSchemaVersion {
		return nil, invalid("unsupported schema_version %d", *p.SchemaVersion)
	}

	fields := []struct {
		name string
		val  *string
	}{
		{model.SlotIncome, p.Income},
		{model.SlotUpcomingExpenses, p.UpcomingExpenses},
		{model.SlotDependents, p.Dependents},
		{model.SlotAdditional, p.Additional},
		{"purchase_amount", p.PurchaseAmount},
	}
	clean := make(map[string]string, len(fields))
	for _, f := range fields {
		v, err := normalizeField(f.name, f.val)
		if err != nil {
			return nil, err
		}
		clean[f.name] = v
	}

	out = &Extraction{
		Info: model.PartialInfo{
			Income:           clean[model.SlotIncome],
			UpcomingExpenses: clean[model.SlotUpcomingExpenses],
			Dependents:       clean[model.SlotDependents],
			Additional:       clean[model.SlotAdditional],
		},
		PurchaseAmountRaw: clean["purchase_amount"],
	}
	if raw := out.PurchaseAmountRaw; raw != "" {
		if v, ok := ParseAmount(raw); ok {
			out.PurchaseAmount = &v
		} else {
			logx.Debug().Str("component", "extraction_parser").Str("purchase_amount", safeSnippet(raw)).
				Msg("ambiguous purchase amount left unset")
		}
	}
	return out, nil
}

func normalizeField(name string, v *string) (string, error) {
	if v == nil {
		return "", nil
	}
	s := strings.TrimSpace(*v)
	if utf8.RuneCountInString(s) > maxFieldLen {
		return "", invalid("%s exceeds %d characters", name, maxFieldLen)
	}
	if _, ok := nullish[strings.ToLower(s)]; ok {
		return "", nil
	}
	return s, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		lang := strings.TrimSpace(s[:nl])
		if lang == "" || !strings.ContainsAny(lang, "{}") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidExtraction, fmt.Sprintf(format, args...))
}

// --- helpers ---

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
