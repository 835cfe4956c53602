// Package testsupport holds fakes shared by package tests.
package testsupport

import (
	"context"
	"errors"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrScriptExhausted is returned once a ScriptedChatModel has no steps left
// and no default responder.
var ErrScriptExhausted = errors.New("scripted chat model: script exhausted")

// Step is one scripted model response.
type Step struct {
	Content string
	Err     error
	Usage   *schema.TokenUsage
}

// Reply is a successful Step.
func Reply(content string) Step { return Step{Content: content} }

// Fail is a failing Step.
func Fail(err error) Step { return Step{Err: err} }

// ScriptedChatModel replays steps in order. It is safe for concurrent use.
type ScriptedChatModel struct {
	mu      sync.Mutex
	steps   []Step
	calls   [][]*schema.Message
	Default func(ctx context.Context, input []*schema.Message) (*schema.Message, error)
}

var _ einomodel.BaseChatModel = (*ScriptedChatModel)(nil)

func NewScriptedChatModel(steps ...Step) *ScriptedChatModel {
	return &ScriptedChatModel{steps: steps}
}

// Push appends more steps to the script.
func (m *ScriptedChatModel) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

func (m *ScriptedChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, input)
	if len(m.steps) == 0 {
		def := m.Default
		m.mu.Unlock()
		if def != nil {
			return def(ctx, input)
		}
		return nil, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	msg := schema.AssistantMessage(step.Content, nil)
	if step.Usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{Usage: step.Usage}
	}
	return msg, nil
}

func (m *ScriptedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns the number of Generate invocations so far.
func (m *ScriptedChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastInput returns the messages passed to the most recent call.
func (m *ScriptedChatModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// Remaining returns the number of unconsumed steps.
func (m *ScriptedChatModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}
