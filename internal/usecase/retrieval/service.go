// Package retrieval finds the manual passages most similar to an operator question.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
)

// Config holds the search parameters.
type Config struct {
	TopK      int
	Threshold float64
}

// DefaultConfig returns top 5 with a 0.5 similarity threshold.
func DefaultConfig() Config {
	return Config{TopK: domain.DefaultTopK, Threshold: domain.DefaultScoreThreshold}
}

// Service embeds questions and searches the caller's namespace.
type Service struct {
	embedder domain.TextEmbedder
	store    VectorSearcher
	cfg      Config
	logger   *zap.Logger
}

// New creates a retrieval Service. A non-positive TopK falls back to the default.
func New(embedder domain.TextEmbedder, store VectorSearcher, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultTopK
	}
	return &Service{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Retrieve returns matches scoring strictly above the threshold, best first
// (ties by id). modelID > 0 narrows the search to one machine model.
// No surviving match yields ErrNoRelevantContent.
func (s *Service) Retrieve(ctx context.Context, tc tenant.Context, question string, modelID int64) ([]vector.Match, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}

	start := time.Now()
	defer func() { metrics.RetrievalDuration.Observe(time.Since(start).Seconds()) }()

	vecs, err := s.embedder.EmbedTexts(ctx, []string{question}, domain.EmbedModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, domain.NewEmbeddingCountMismatch(len(vecs), 1)
	}

	filter, err := vector.TenantFilter(tc.ProducerID(), modelID)
	if err != nil {
		return nil, fmt.Errorf("build tenant filter: %w", err)
	}

	raw, err := s.store.Search(ctx, vector.Query{
		Namespace: tc.Namespace(),
		Vector:    vecs[0],
		TopK:      s.cfg.TopK,
		Filter:    filter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %w", domain.ErrVectorStore, s.store.Name(), err)
	}

	matches := s.rank(raw)
	metrics.RetrievalMatches.Observe(float64(len(matches)))

	s.logger.Debug("Retrieval done",
		zap.Int64("producer_id", tc.ProducerID()),
		zap.Int64("model_id", modelID),
		zap.Int("candidates", len(raw)),
		zap.Int("matches", len(matches)),
	)

	if len(matches) == 0 {
		return nil, domain.ErrNoRelevantContent
	}
	return matches, nil
}

func (s *Service) rank(raw []vector.Match) []vector.Match {
	out := make([]vector.Match, 0, len(raw))
	for _, m := range raw {
		if m.Score > s.cfg.Threshold {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b vector.Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(out) > s.cfg.TopK {
		out = out[:s.cfg.TopK]
	}
	return out
}
