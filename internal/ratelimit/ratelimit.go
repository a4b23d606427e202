package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/inboxsheet/internal/ai"
)

// Ensure Provider implements ai.LLMProvider.
var _ ai.LLMProvider = (*Provider)(nil)

// Provider is a decorator that paces calls to the wrapped LLM provider so
// that no more than the configured number of requests start per minute.
type Provider struct {
	inner   ai.LLMProvider
	limiter *rate.Limiter
}

// NewProvider wraps inner with a requests-per-minute limit. The first call
// goes through immediately; later calls are spaced evenly over the minute.
func NewProvider(inner ai.LLMProvider, requestsPerMinute int) *Provider {
	return &Provider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

// Wrap returns inner unchanged when requestsPerMinute is not positive.
func Wrap(inner ai.LLMProvider, requestsPerMinute int) ai.LLMProvider {
	if requestsPerMinute <= 0 {
		return inner
	}
	return NewProvider(inner, requestsPerMinute)
}

// Complete waits for the limiter, then delegates to the wrapped provider.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limiter wait: %w", err)
	}
	return p.inner.Complete(ctx, prompt)
}
