// Package sqlite persists documents and chunk records in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // driver

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
)

//go:embed schema.sql
var schemaFS embed.FS

const schemaVersion = 1

// Repo implements the records port on SQLite.
type Repo struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema. ":memory:" is accepted.
func Open(path string) (*Repo, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	r := &Repo{db: sqlDB}
	if err := r.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return r, nil
}

// Close closes the database.
func (r *Repo) Close() error { return r.db.Close() }

// Ping checks the database.
func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) migrate() error {
	var exists int
	if err := r.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists); err != nil {
		return fmt.Errorf("check schema_version: %w", err)
	}
	if exists > 0 {
		var v int
		if err := r.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if v >= schemaVersion {
			return nil
		}
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		schemaVersion, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return tx.Commit()
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
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO documents (producer_id, title, file_ref, model_id, status) VALUES (?, ?, ?, ?, ?) RETURNING id`,
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
		processedAt                    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT title, file_ref, model_id, page_count, status, processing_error, total_chunks, resume_from, processed_at
		FROM documents WHERE id = ? AND producer_id = ?`, id, producerID,
	).Scan(&title, &fileRef, &modelID, &pageCount, &status, &errMsg, &totalChunks, &resume, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Source{}, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return document.Source{}, fmt.Errorf("get document %d: %w", id, err)
	}

	var at time.Time
	if processedAt.Valid {
		at, err = time.Parse(time.RFC3339Nano, processedAt.String)
		if err != nil {
			return document.Source{}, fmt.Errorf("parse processed_at: %w", err)
		}
	}
	return document.Reconstruct(id, producerID, title, fileRef, modelID,
		pageCount, document.Status(status), errMsg, totalChunks, resume, at), nil
}

// Save persists the lifecycle fields of doc.
func (r *Repo) Save(ctx context.Context, doc document.Source) error {
	var processedAt any
	if !doc.ProcessedAt().IsZero() {
		processedAt = doc.ProcessedAt().UTC().Format(time.RFC3339Nano)
	}
	modelID, _ := doc.ModelID()
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET title = ?, file_ref = ?, model_id = ?, page_count = ?, status = ?,
			processing_error = ?, total_chunks = ?, resume_from = ?, processed_at = ?
		WHERE id = ? AND producer_id = ?`,
		doc.Title(), doc.FileRef(), modelID, doc.PageCount(), string(doc.Status()),
		doc.Error(), doc.TotalChunks(), doc.ResumeFrom(), processedAt,
		doc.ID(), doc.ProducerID(),
	)
	if err != nil {
		return fmt.Errorf("save document %d: %w", doc.ID(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %d: %w", doc.ID(), domain.ErrNotFound)
	}
	return nil
}

// ReplaceChunks swaps the chunk records of a document in one transaction.
func (r *Repo) ReplaceChunks(ctx context.Context, documentID int64, chunks []document.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete chunks of %d: %w", documentID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (document_id, chunk_index, text, page, char_start, char_end, vector_id, images)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		images, err := json.Marshal(c.Images)
		if err != nil {
			return fmt.Errorf("marshal images of chunk %d: %w", c.Index, err)
		}
		if _, err := stmt.ExecContext(ctx,
			documentID, c.Index, c.Text, c.Page, c.CharStart, c.CharEnd, c.VectorID, string(images),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}
	return tx.Commit()
}

// Chunks returns the stored chunk records of a document ordered by index.
func (r *Repo) Chunks(ctx context.Context, documentID int64) ([]document.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_index, text, page, char_start, char_end, vector_id, images
		FROM chunks WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks of %d: %w", documentID, err)
	}
	defer rows.Close()

	var out []document.Chunk
	for rows.Next() {
		c := document.Chunk{DocumentID: documentID}
		var images string
		if err := rows.Scan(&c.Index, &c.Text, &c.Page, &c.CharStart, &c.CharEnd, &c.VectorID, &images); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(images), &c.Images); err != nil {
			return nil, fmt.Errorf("unmarshal images: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
