package ingest

import (
	"context"

	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/repository/lease"
)

// DocumentStore persists documents and their chunk records (ISP).
type DocumentStore interface {
	Get(ctx context.Context, producerID, id int64) (document.Source, error)
	Save(ctx context.Context, doc document.Source) error
	ReplaceChunks(ctx context.Context, documentID int64, chunks []document.Chunk) error
}

// Extractor turns a file into pages.
type Extractor interface {
	Extract(ctx context.Context, doc document.Source, data []byte) ([]document.Page, error)
}

// Chunker splits pages into document-global chunks.
type Chunker interface {
	Chunk(documentID int64, pages []document.Page) []document.Chunk
}

// Indexer writes and removes vectors (ISP).
type Indexer interface {
	UpsertFrom(ctx context.Context, namespace string, records []vector.Record, offset int) error
	Delete(ctx context.Context, tc tenant.Context, sel vector.Selector) (int, error)
}

// Leaser serializes ingestion runs of the same document.
type Leaser interface {
	Acquire(ctx context.Context, documentID int64) (*lease.Lease, error)
}
