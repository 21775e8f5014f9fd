package index

import (
	"context"

	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

// VectorStore is the namespace-scoped vector backend.
type VectorStore interface {
	Name() string
	Upsert(ctx context.Context, namespace string, records []vector.Record) error
	Delete(ctx context.Context, namespace string, sel vector.Selector) (int, error)
}
