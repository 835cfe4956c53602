package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtraction_Valid(t *testing.T) {
	content := `{"schema_version":1,"income":"90k per month salary","upcoming_expenses":"  school fees in June ","dependents":"two kids","additional":null,"purchase_amount":"8 lakh"}`

	got, err := ParseExtraction(content)
	require.NoError(t, err)
	assert.Equal(t, "90k per month salary", got.Info.Income)
	assert.Equal(t, "school fees in June", got.Info.UpcomingExpenses)
	assert.Equal(t, "two kids", got.Info.Dependents)
	assert.Empty(t, got.Info.Additional)
	require.NotNil(t, got.PurchaseAmount)
	assert.InDelta(t, 800_000, *got.PurchaseAmount, 0.001)
	assert.True(t, got.Info.Complete())
}

func TestParseExtraction_CodeFence(t *testing.T) {
	content := "```json\n{\"schema_version\":1,\"income\":\"salary 1 lakh\"}\n```"

	got, err := ParseExtraction(content)
	require.NoError(t, err)
	assert.Equal(t, "salary 1 lakh", got.Info.Income)
	assert.Nil(t, got.PurchaseAmount)
}

func TestParseExtraction_BlankAndPlaceholderAreUnset(t *testing.T) {
	got, err := ParseExtraction(`{"schema_version":1,"income":"   ","dependents":"N/A","upcoming_expenses":"unknown"}`)
	require.NoError(t, err)
	assert.True(t, got.Info.Empty())
}

func TestParseExtraction_AmbiguousAmountLeftUnset(t *testing.T) {
	got, err := ParseExtraction(`{"schema_version":1,"purchase_amount":"45L"}`)
	require.NoError(t, err)
	assert.Nil(t, got.PurchaseAmount)
	assert.Equal(t, "45L", got.PurchaseAmountRaw)
}

func TestParseExtraction_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"prose", "The user earns a salary."},
		{"unknown field", `{"schema_version":1,"income":"x","salary":"y"}`},
		{"wrong type", `{"schema_version":1,"income":90000}`},
		{"missing version", `{"income":"x"}`},
		{"wrong version", `{"schema_version":2,"income":"x"}`},
		{"trailing object", `{"schema_version":1}{"schema_version":1}`},
		{"prose around object", `Here you go: {"schema_version":1}`},
		{"field too long", `{"schema_version":1,"income":"` + strings.Repeat("a", maxFieldLen+1) + `"}`},
		{"too large", `{"schema_version":1,"additional":"` + strings.Repeat("a", maxContentLen) + `"}`},
		{"invalid utf8", "{\"schema_version\":1,\"income\":\"\xff\"}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExtraction(tt.content)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidExtraction)
			assert.Nil(t, got)
		})
	}
}
