package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/finbuddy-intake-core/server/internal/agent/metrics"
	"github.com/finbuddy-intake-core/server/internal/agent/model"
	errx "github.com/finbuddy-intake-core/server/internal/core/error"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// maxAttempts is one call plus one retry.
const maxAttempts = 2

// NewLimiter builds the shared model limiter from a requests-per-minute budget.
// A non-positive budget disables limiting.
func NewLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
}

// ResilientChatModel wraps a chat model with the shared rate limiter, a
// per-attempt timeout and a single retry with exponential backoff.
type ResilientChatModel struct {
	inner   einomodel.BaseChatModel
	name    string
	limiter *rate.Limiter
	retry   time.Duration
	timeout time.Duration
}

var _ einomodel.BaseChatModel = (*ResilientChatModel)(nil)

func NewResilientChatModel(inner einomodel.BaseChatModel, name string, limiter *rate.Limiter, cfg model.LLMConfig) *ResilientChatModel {
	if limiter == nil {
		limiter = NewLimiter(cfg.RequestsPerMinute)
	}
	return &ResilientChatModel{
		inner:   inner,
		name:    name,
		limiter: limiter,
		retry:   cfg.RetryBackoff,
		timeout: cfg.CallTimeout,
	}
}

// Name is the underlying model name, used for pricing and metrics.
func (m *ResilientChatModel) Name() string { return m.name }

func (m *ResilientChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	return withRetry(ctx, m, func(callCtx context.Context) (*schema.Message, error) {
		return m.inner.Generate(callCtx, input, opts...)
	})
}

// Stream retries only establishing the stream. Chunk errors surface to the reader.
func (m *ResilientChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return withRetry(ctx, m, func(callCtx context.Context) (*schema.StreamReader[*schema.Message], error) {
		return m.inner.Stream(callCtx, input, opts...)
	})
}

// GetType reports the wrapped component type for callbacks.
func (m *ResilientChatModel) GetType() string { return "Resilient" }

// IsCallbacksEnabled defers to the wrapped model so callbacks fire once per call.
func (m *ResilientChatModel) IsCallbacksEnabled() bool {
	return components.IsCallbacksEnabled(m.inner)
}

func withRetry[T any](ctx context.Context, m *ResilientChatModel, call func(context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		var zero T
		attempt++
		if !m.limiter.Allow() {
			metrics.RecordRateLimited(m.name)
			if err := m.limiter.Wait(ctx); err != nil {
				return zero, backoff.Permanent(err)
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if m.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, m.timeout)
		}
		defer cancel()

		start := time.Now()
		out, err := call(callCtx)
		metrics.RecordModelCall(m.name, time.Since(start), err)
		if err != nil {
			if ctx.Err() != nil {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}
		return out, nil
	}

	b := backoff.NewExponentialBackOff()
	if m.retry > 0 {
		b.InitialInterval = m.retry
	}
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.RecordModelRetry(m.name)
			logx.Warn().Err(err).Str("model", m.name).Dur("retry_in", next).Msg("Chat model call failed, retrying")
		}),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return out, err
		}
		logx.Error().Err(err).Str("model", m.name).Int("attempts", attempt).Msg("Chat model call failed")
		return out, errx.WrapModel(err)
	}
	return out, nil
}
