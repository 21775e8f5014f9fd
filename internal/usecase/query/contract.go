package query

import (
	"context"

	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/usecase/generation"
)

// Retriever finds relevant passages (ISP).
type Retriever interface {
	Retrieve(ctx context.Context, tc tenant.Context, question string, modelID int64) ([]vector.Match, error)
}

// Generator answers from passages (ISP).
type Generator interface {
	Generate(ctx context.Context, question string, matches []vector.Match) (generation.Result, error)
}
