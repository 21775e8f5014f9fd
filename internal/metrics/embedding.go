// Package metrics holds the Prometheus collectors of the service. Collectors
// are registered explicitly from main through the Register* functions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "machinegpt"

// Embedding provider metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding provider requests by outcome",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Successful embedding request duration",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	EmbeddingBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_batch_size",
			Help:      "Texts sent per embedding request",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 100, 256},
		},
		[]string{"provider"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_tokens_total",
			Help:      "Tokens reported by the embedding provider",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_errors_total",
			Help:      "Failed embedding requests by cause",
		},
		[]string{"provider", "model", "error_type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Query embedding cache lookups",
		},
		[]string{"mode", "result"},
	)

	EmbeddingRateLimitWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_rate_limit_wait_seconds",
			Help:      "Time spent waiting for the embedding rate limiter",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"provider"},
	)
)

// EmbeddingCall describes one provider request. An empty Failure means success.
type EmbeddingCall struct {
	Provider     string
	Model        string
	Inputs       int
	Took         time.Duration
	PromptTokens int
	TotalTokens  int
	Failure      string
}

// Record adds c to the embedding collectors.
func (c EmbeddingCall) Record() {
	EmbeddingBatchSize.WithLabelValues(c.Provider).Observe(float64(c.Inputs))
	if c.Failure != "" {
		EmbeddingRequestsTotal.WithLabelValues(c.Provider, c.Model, "error").Inc()
		EmbeddingErrorsTotal.WithLabelValues(c.Provider, c.Model, c.Failure).Inc()
		return
	}
	EmbeddingRequestsTotal.WithLabelValues(c.Provider, c.Model, "success").Inc()
	EmbeddingRequestDuration.WithLabelValues(c.Provider, c.Model).Observe(c.Took.Seconds())
	if c.TotalTokens > 0 {
		EmbeddingTokensTotal.WithLabelValues(c.Provider, c.Model, "prompt").Add(float64(c.PromptTokens))
		EmbeddingTokensTotal.WithLabelValues(c.Provider, c.Model, "total").Add(float64(c.TotalTokens))
	}
}

var embeddingOnce sync.Once

// RegisterEmbeddingMetrics registers the embedding collectors on the default registry.
func RegisterEmbeddingMetrics() {
	embeddingOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal, EmbeddingRequestDuration, EmbeddingBatchSize,
			EmbeddingTokensTotal, EmbeddingErrorsTotal,
			EmbeddingCacheTotal, EmbeddingRateLimitWait,
		)
	})
}
