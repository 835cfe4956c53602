package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/collection_prompt.txt
var collectionSystemPrompt string

// Slot is one collected intake value rendered into the prompt.
type Slot struct {
	Name  string
	Value string
}

// CollectionVars parameterises the collection system prompt.
type CollectionVars struct {
	Phase            string
	Collected        []Slot
	Missing          []string
	PurchaseAmount   string
	AllInfoCollected bool
	AnalysisSummary  string
	LastError        string
	ConfirmQuestion  string
}

// RenderCollectionSystem renders the collection agent system prompt and triggers prompt callbacks.
func RenderCollectionSystem(ctx context.Context, vars CollectionVars) (string, error) {
	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(collectionSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Phase":            vars.Phase,
		"Collected":        vars.Collected,
		"Missing":          vars.Missing,
		"PurchaseAmount":   vars.PurchaseAmount,
		"AllInfoCollected": vars.AllInfoCollected,
		"AnalysisSummary":  vars.AnalysisSummary,
		"LastError":        vars.LastError,
		"ConfirmQuestion":  vars.ConfirmQuestion,
	})
	if err != nil {
		return "", fmt.Errorf("collection prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("collection prompt render: empty result")
	}
	return msgs[0].Content, nil
}
