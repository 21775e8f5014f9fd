// Package postgres persists documents and chunk records in Postgres via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
)

// pool is the consumer interface satisfied by *pgxpool.Pool.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repo implements the records port on Postgres.
type Repo struct {
	pool pool
}

// New creates a Postgres records repository.
func New(p pool) *Repo {
	return &Repo{pool: p}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id               BIGSERIAL PRIMARY KEY,
	producer_id      BIGINT NOT NULL,
	title            TEXT NOT NULL,
	file_ref         TEXT NOT NULL,
	model_id         BIGINT NOT NULL DEFAULT 0,
	page_count       INT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'pending',
	processing_error TEXT NOT NULL DEFAULT '',
	total_chunks     INT NOT NULL DEFAULT 0,
	resume_from      INT NOT NULL DEFAULT 0,
	processed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_producer ON documents(producer_id);

CREATE TABLE IF NOT EXISTS chunks (
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	text        TEXT NOT NULL,
	page        INT NOT NULL,
	char_start  INT NOT NULL,
	char_end    INT NOT NULL,
	vector_id   TEXT NOT NULL,
	images      JSONB NOT NULL DEFAULT '[]',
	PRIMARY KEY (document_id, chunk_index)
);
`

// EnsureSchema creates the tables when missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create records schema: %w", err)
	}
	return nil
}

// Create inserts a pending document and returns it with its assigned id.
func (r *Repo) Create(ctx context.Context, producerID int64, title, fileRef string, modelID int64) (document.Source, error) {
	if producerID <= 0 {
		return document.Source{}, domain.ErrTenantContextMissing
	}
	if title == "" || fileRef == "" {
		return document.Source{}, fmt.Errorf("document title and file reference are required")
	}
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO documents (producer_id, title, file_ref, model_id, status) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		producerID, title, fileRef, modelID, string(document.StatusPending),
	).Scan(&id)
	if err != nil {
		return document.Source{}, fmt.Errorf("insert document: %w", err)
	}
	return document.New(id, producerID, title, fileRef, modelID)
}

// Get loads a document owned by producerID. Another tenant's document is ErrNotFound.
func (r *Repo) Get(ctx context.Context, producerID, id int64) (document.Source, error) {
	var (
		title, fileRef, status, errMsg string
		modelID                        int64
		pageCount, totalChunks, resume int
		processedAt                    *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT title, file_ref, model_id, page_count, status, processing_error, total_chunks, resume_from, processed_at
		FROM documents WHERE id = $1 AND producer_id = $2`, id, producerID,
	).Scan(&title, &fileRef, &modelID, &pageCount, &status, &errMsg, &totalChunks, &resume, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Source{}, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return document.Source{}, fmt.Errorf("get document %d: %w", id, err)
	}

	var at time.Time
	if processedAt != nil {
		at = *processedAt
	}
	return document.Reconstruct(id, producerID, title, fileRef, modelID,
		pageCount, document.Status(status), errMsg, totalChunks, resume, at), nil
}

// Save persists the lifecycle fields of doc.
func (r *Repo) Save(ctx context.Context, doc document.Source) error {
	var processedAt *time.Time
	if at := doc.ProcessedAt(); !at.IsZero() {
		processedAt = &at
	}
	modelID, _ := doc.ModelID()
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET title = $1, file_ref = $2, model_id = $3, page_count = $4, status = $5,
			processing_error = $6, total_chunks = $7, resume_from = $8, processed_at = $9
		WHERE id = $10 AND producer_id = $11`,
		doc.Title(), doc.FileRef(), modelID, doc.PageCount(), string(doc.Status()),
		doc.Error(), doc.TotalChunks(), doc.ResumeFrom(), processedAt,
		doc.ID(), doc.ProducerID(),
	)
	if err != nil {
		return fmt.Errorf("save document %d: %w", doc.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", doc.ID(), domain.ErrNotFound)
	}
	return nil
}

// ReplaceChunks swaps the chunk records of a document in one transaction.
func (r *Repo) ReplaceChunks(ctx context.Context, documentID int64, chunks []document.Chunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks of %d: %w", documentID, err)
	}

	rows := make([][]any, 0, len(chunks))
	for _, c := range chunks {
		images, err := json.Marshal(c.Images)
		if err != nil {
			return fmt.Errorf("marshal images of chunk %d: %w", c.Index, err)
		}
		rows = append(rows, []any{documentID, c.Index, c.Text, c.Page, c.CharStart, c.CharEnd, c.VectorID, string(images)})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"chunks"},
		[]string{"document_id", "chunk_index", "text", "page", "char_start", "char_end", "vector_id", "images"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy chunks of %d: %w", documentID, err)
	}
	return tx.Commit(ctx)
}

// Chunks returns the stored chunk records of a document ordered by index.
func (r *Repo) Chunks(ctx context.Context, documentID int64) ([]document.Chunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT chunk_index, text, page, char_start, char_end, vector_id, images
		FROM chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks of %d: %w", documentID, err)
	}
	defer rows.Close()

	var out []document.Chunk
	for rows.Next() {
		c := document.Chunk{DocumentID: documentID}
		var images []byte
		if err := rows.Scan(&c.Index, &c.Text, &c.Page, &c.CharStart, &c.CharEnd, &c.VectorID, &images); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(images, &c.Images); err != nil {
			return nil, fmt.Errorf("unmarshal images: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
