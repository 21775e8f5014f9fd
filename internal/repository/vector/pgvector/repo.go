// Package pgvector stores tenant vectors in Postgres with the pgvector extension.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

// pool is the consumer interface satisfied by *pgxpool.Pool.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repo implements the vector store port over a pgvector table.
type Repo struct {
	pool       pool
	dimensions int
}

// New creates a pgvector repository.
func New(p pool, dimensions int) *Repo {
	return &Repo{pool: p, dimensions: dimensions}
}

// Name identifies the backend in metrics and logs.
func (r *Repo) Name() string { return "pgvector" }

// EnsureIndex creates the extension, table and indexes.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	if r.dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	if _, err := r.pool.Exec(ctx, schemaSQL(r.dimensions)); err != nil {
		return fmt.Errorf("create vectors schema: %w", err)
	}
	return nil
}

func schemaSQL(dim int) string {
	return `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS vectors (
		namespace   TEXT NOT NULL,
		id          TEXT NOT NULL,
		producer_id BIGINT NOT NULL,
		model_id    BIGINT NOT NULL DEFAULT 0,
		doc_id      BIGINT NOT NULL,
		page        INT NOT NULL,
		embedding   vector(` + strconv.Itoa(dim) + `) NOT NULL,
		metadata    JSONB NOT NULL,
		PRIMARY KEY (namespace, id)
	);

	CREATE INDEX IF NOT EXISTS idx_vectors_embedding ON vectors USING hnsw (embedding vector_cosine_ops);
	CREATE INDEX IF NOT EXISTS idx_vectors_doc ON vectors (namespace, doc_id);
	`
}

const upsertSQL = `
	INSERT INTO vectors (namespace, id, producer_id, model_id, doc_id, page, embedding, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	ON CONFLICT (namespace, id) DO UPDATE SET
		producer_id = EXCLUDED.producer_id,
		model_id = EXCLUDED.model_id,
		doc_id = EXCLUDED.doc_id,
		page = EXCLUDED.page,
		embedding = EXCLUDED.embedding,
		metadata = EXCLUDED.metadata`

// Upsert writes records in one batch round-trip. Same id overwrites.
func (r *Repo) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if len(records) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %s: %w", rec.ID, err)
		}
		m := rec.Metadata
		b.Queue(upsertSQL, namespace, rec.ID, m.ProducerID, m.ModelID, m.DocID, m.Page,
			pgv.NewVector(rec.Values), string(meta))
	}

	br := r.pool.SendBatch(ctx, b)
	defer br.Close()
	for _, rec := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert %s into %s: %w", rec.ID, namespace, err)
		}
	}
	return nil
}

// Search orders by cosine distance inside the namespace and the filter.
func (r *Repo) Search(ctx context.Context, q vector.Query) ([]vector.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	where, args := whereClause(q.Namespace, q.Filter, 2)
	args = append([]any{pgv.NewVector(q.Vector)}, args...)
	args = append(args, q.TopK)
	sql := `SELECT id, metadata, 1 - (embedding <=> $1) AS score FROM vectors WHERE ` + where +
		` ORDER BY embedding <=> $1, id LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Namespace, err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var (
			m    vector.Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &meta, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata %s: %w", m.ID, err)
		}
		m.Score = max(0, m.Score)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Namespace, err)
	}
	return matches, nil
}

// Delete removes the selected vectors from namespace.
func (r *Repo) Delete(ctx context.Context, namespace string, sel vector.Selector) (int, error) {
	if namespace == "" {
		return 0, fmt.Errorf("namespace is required")
	}
	if err := sel.Validate(); err != nil {
		return 0, err
	}

	var (
		tag pgconn.CommandTag
		err error
	)
	if len(sel.IDs) > 0 {
		tag, err = r.pool.Exec(ctx, `DELETE FROM vectors WHERE namespace = $1 AND id = ANY($2)`, namespace, sel.IDs)
	} else {
		where, args := whereClause(namespace, sel.Filter, 1)
		tag, err = r.pool.Exec(ctx, `DELETE FROM vectors WHERE `+where, args...)
	}
	if err != nil {
		return 0, fmt.Errorf("delete in %s: %w", namespace, err)
	}
	return int(tag.RowsAffected()), nil
}

// filterColumns maps filterable metadata fields onto table columns.
var filterColumns = map[string]string{
	vector.FieldProducerID: "producer_id",
	vector.FieldModelID:    "model_id",
	vector.FieldDocID:      "doc_id",
}

// whereClause builds the namespace-scoped predicate with placeholders starting at $first.
func whereClause(namespace string, f vector.Filter, first int) (string, []any) {
	parts := []string{"namespace = $" + strconv.Itoa(first)}
	args := []any{namespace}
	for _, c := range f.Must() {
		args = append(args, c.Value())
		parts = append(parts, filterColumns[c.Key()]+" = $"+strconv.Itoa(first+len(args)-1))
	}
	return strings.Join(parts, " AND "), args
}
