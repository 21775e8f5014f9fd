package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
)

// RateLimitedEmbedder throttles provider requests. One batch request costs one token.
type RateLimitedEmbedder struct {
	inner    domain.Embedder
	limiter  *rate.Limiter
	provider string
}

// NewRateLimitedEmbedder allows rps requests per second with the given burst.
func NewRateLimitedEmbedder(inner domain.Embedder, rps float64, burst int, provider string) *RateLimitedEmbedder {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:    inner,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		provider: provider,
	}
}

func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	start := time.Now()
	err := r.limiter.Wait(ctx)
	metrics.EmbeddingRateLimitWait.WithLabelValues(r.provider).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("rate limit wait: %w", ctxErr)
	}
	// Wait fails early when the deadline cannot be met.
	return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
}

// Embed waits for a token and delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return r.inner.Embed(ctx, text) //nolint:wrapcheck // transparent decorator
}

// BatchEmbed waits for a token and delegates.
func (r *RateLimitedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchVia(ctx, r.inner, texts)
}

