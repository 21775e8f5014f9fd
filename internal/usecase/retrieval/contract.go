package retrieval

import (
	"context"

	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

// VectorSearcher runs namespace-scoped nearest-neighbour queries (ISP).
type VectorSearcher interface {
	Name() string
	Search(ctx context.Context, q vector.Query) ([]vector.Match, error)
}
