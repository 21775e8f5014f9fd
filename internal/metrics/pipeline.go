package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion and query pipeline metrics.
var (
	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Ingestion runs by final status",
		},
		[]string{"status"},
	)

	IngestChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunks produced by completed ingestion runs",
		},
	)

	IngestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Ingestion run duration by phase",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"phase"},
	)

	VectorUpsertBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_upsert_batches_total",
			Help:      "Vector upsert batches by outcome",
		},
		[]string{"backend", "status"},
	)

	VectorUpsertRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_upsert_retries_total",
			Help:      "Vector upsert batch retries",
		},
		[]string{"backend"},
	)

	RetrievalMatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_matches",
			Help:      "Matches kept after the relevance threshold",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Query embedding plus vector search duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Generation tokens by direction",
		},
		[]string{"provider", "model", "type"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation request duration",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model", "status"},
	)

	QueryOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_outcomes_total",
			Help:      "Queries by outcome",
		},
		[]string{"outcome"},
	)
)

var pipelineOnce sync.Once

// RegisterPipelineMetrics registers the ingestion and query collectors.
func RegisterPipelineMetrics() {
	pipelineOnce.Do(func() {
		prometheus.MustRegister(
			IngestDocumentsTotal, IngestChunksTotal, IngestDuration,
			VectorUpsertBatchesTotal, VectorUpsertRetriesTotal,
			RetrievalMatches, RetrievalDuration,
			GenerationTokensTotal, GenerationDuration,
			QueryOutcomesTotal,
		)
	})
}
