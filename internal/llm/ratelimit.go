package llm

import (
	"context"
	"fmt"

	"github.com/ppiankov/autoclaim/internal/worker"
)

// RateLimitedProvider waits on a shared limiter before every completion
type RateLimitedProvider struct {
	Provider
	limiter *worker.Limiter
}

// WithRateLimit wraps p so each call takes a token keyed by the provider name.
// A nil limiter returns p unchanged.
func WithRateLimit(p Provider, limiter *worker.Limiter) Provider {
	if limiter == nil {
		return p
	}
	return &RateLimitedProvider{Provider: p, limiter: limiter}
}

// Complete blocks until the limiter admits the request or ctx is done
func (p *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := p.limiter.Wait(ctx, "llm:"+p.Name()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return p.Provider.Complete(ctx, req)
}
