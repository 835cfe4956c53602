// Package extractor turns a conversation transcript into structured intake
// slots, using the extraction model first and a keyword heuristic when the
// model output cannot be trusted.
package extractor

import (
	"context"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/finbuddy-intake-core/server/internal/agent/graph/conversations"
	"github.com/finbuddy-intake-core/server/internal/agent/graph/parsers"
	"github.com/finbuddy-intake-core/server/internal/agent/graph/prompts"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// Source records which path produced a Result.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Fallback reasons reported to the fallback hook.
const (
	ReasonNoModel     = "no_model"
	ReasonModelError  = "model_error"
	ReasonEmptyOutput = "empty_output"
	ReasonInvalid     = "invalid_payload"
)

// Result is one extraction over a full transcript.
type Result struct {
	Info             model.PartialInfo
	PurchaseAmount   *float64
	AllInfoCollected bool
	Source           Source
	Usage            *schema.TokenUsage
}

type Option func(*Extractor)

// WithFallbackHook registers a callback invoked with the reason whenever the
// heuristic fallback is used.
func WithFallbackHook(fn func(reason string)) Option {
	return func(e *Extractor) { e.onFallback = fn }
}

// WithMaxTranscript caps how many trailing messages are sent to the model.
func WithMaxTranscript(n int) Option {
	return func(e *Extractor) { e.maxTranscript = n }
}

type Extractor struct {
	chatModel     einomodel.BaseChatModel
	maxTranscript int
	onFallback    func(reason string)
	messages      *conversations.MessagesManager
}

// New builds an extractor. A nil chat model makes every call use the fallback.
func New(chatModel einomodel.BaseChatModel, opts ...Option) *Extractor {
	e := &Extractor{chatModel: chatModel}
	for _, opt := range opts {
		opt(e)
	}
	e.messages = conversations.NewMessagesManager(e.maxTranscript)
	return e
}

// Extract never returns an error: model failures degrade to Fallback.
func (e *Extractor) Extract(ctx context.Context, transcript []model.Message) Result {
	if e.chatModel == nil {
		return e.fallback(transcript, ReasonNoModel, nil)
	}

	msgs, err := e.buildMessages(ctx, transcript)
	if err != nil {
		return e.fallback(transcript, ReasonModelError, err)
	}

	out, err := e.chatModel.Generate(ctx, msgs)
	if err != nil {
		return e.fallback(transcript, ReasonModelError, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return e.fallback(transcript, ReasonEmptyOutput, nil)
	}

	parsed, err := parsers.ParseExtraction(out.Content)
	if err != nil {
		return e.fallback(transcript, ReasonInvalid, err)
	}
	if parsed.Info.Empty() && parsed.PurchaseAmount == nil {
		logx.Debug().Str("component", "extractor").Int("messages", len(transcript)).Msg("Extraction found no facts yet")
	}

	return Result{
		Info:             parsed.Info,
		PurchaseAmount:   parsed.PurchaseAmount,
		AllInfoCollected: parsed.Info.Complete(),
		Source:           SourceModel,
		Usage:            model.UsageOf(out),
	}
}

func (e *Extractor) buildMessages(ctx context.Context, transcript []model.Message) ([]*schema.Message, error) {
	sys, err := prompts.RenderExtractionSystem(ctx)
	if err != nil {
		return nil, err
	}
	return []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage(e.messages.BuildExtractionContext(transcript)),
	}, nil
}

func (e *Extractor) fallback(transcript []model.Message, reason string, cause error) Result {
	ev := logx.Warn().Str("component", "extractor").Str("reason", reason).Int("messages", len(transcript))
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("Extraction model unavailable, using keyword fallback")
	if e.onFallback != nil {
		e.onFallback(reason)
	}
	return Fallback(transcript)
}
