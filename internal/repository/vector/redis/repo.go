// Package redis stores tenant vectors as hashes indexed by a Redis/Valkey FT vector index.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/machinegpt/internal/db"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

const (
	// IndexName is the single FT index over all tenants; isolation is the namespace TAG.
	IndexName = db.KeyPrefix + "idx:vectors"
	keyPrefix = db.KeyPrefix + "vec:"

	deletePageSize = 500
)

// store is the consumer interface for vector operations (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys ...string) (int, error)
	CreateIndex(ctx context.Context, schema *db.Schema) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchKeys(ctx context.Context, index string, tags []db.TagMatch, limit int) ([]string, error)
}

// IndexConfig holds HNSW parameters for the vector field.
type IndexConfig struct {
	Dimensions     int
	M              int
	EFConstruction int
	// EFRuntime is the per-query candidate list size. Zero keeps the server default.
	EFRuntime int
}

// Repo implements the vector store port over the FT index.
type Repo struct {
	store store
	cfg   IndexConfig
}

// New creates a Redis vector repository.
func New(s store, cfg IndexConfig) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// Name identifies the backend in metrics and logs.
func (r *Repo) Name() string { return "redis" }

// EnsureIndex creates the FT index when it is missing.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	schema, err := db.NewVectorSchema(IndexName, keyPrefix,
		[]string{fieldNamespace, vector.FieldProducerID, vector.FieldModelID, vector.FieldDocID},
		[]string{fieldPage},
		fieldVector,
		db.HNSW{Dim: r.cfg.Dimensions, M: r.cfg.M, EFConstruction: r.cfg.EFConstruction},
	)
	if err != nil {
		return fmt.Errorf("build index schema: %w", err)
	}
	if err := r.store.CreateIndex(ctx, schema); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert writes records into namespace. Same id overwrites, so retries are idempotent.
func (r *Repo) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	items := make([]db.HashSetItem, 0, len(records))
	for _, rec := range records {
		fields, err := buildHashFields(namespace, rec)
		if err != nil {
			return err
		}
		items = append(items, db.HashSetItem{Key: vectorKey(namespace, rec.ID), Fields: fields})
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d vectors into %s: %w", len(records), namespace, err)
	}
	return nil
}

// Search runs a KNN query restricted to the namespace and the query filter.
func (r *Repo) Search(ctx context.Context, q vector.Query) ([]vector.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName,
		VectorField:  fieldVector,
		Tags:         scopeTags(q.Namespace, q.Filter),
		Vector:       q.Vector,
		K:            q.TopK,
		ReturnFields: []string{fieldMeta},
		EFRuntime:    r.cfg.EFRuntime,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Namespace, err)
	}
	if sr == nil {
		return nil, nil
	}

	prefix := vectorKey(q.Namespace, "")
	matches := make([]vector.Match, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		meta, err := parseMeta(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Key, err)
		}
		matches = append(matches, vector.Match{
			ID:       strings.TrimPrefix(e.Key, prefix),
			Score:    e.Score,
			Metadata: meta,
		})
	}
	return matches, nil
}

// Delete removes the selected vectors from namespace and returns how many existed.
func (r *Repo) Delete(ctx context.Context, namespace string, sel vector.Selector) (int, error) {
	if namespace == "" {
		return 0, fmt.Errorf("namespace is required")
	}
	if err := sel.Validate(); err != nil {
		return 0, err
	}

	if len(sel.IDs) > 0 {
		keys := make([]string, len(sel.IDs))
		for i, id := range sel.IDs {
			keys[i] = vectorKey(namespace, id)
		}
		n, err := r.store.DelMulti(ctx, keys...)
		if err != nil {
			return 0, fmt.Errorf("delete ids in %s: %w", namespace, err)
		}
		return n, nil
	}

	tags := scopeTags(namespace, sel.Filter)
	total := 0
	for {
		keys, err := r.store.SearchKeys(ctx, IndexName, tags, deletePageSize)
		if err != nil {
			return total, fmt.Errorf("list vectors in %s: %w", namespace, err)
		}
		if len(keys) == 0 {
			return total, nil
		}
		n, err := r.store.DelMulti(ctx, keys...)
		if err != nil {
			return total, fmt.Errorf("delete vectors in %s: %w", namespace, err)
		}
		total += n
		if n == 0 {
			return total, nil
		}
	}
}

// vectorKey hash-tags the namespace so one tenant's keys share a cluster slot.
func vectorKey(namespace, id string) string {
	return keyPrefix + "{" + namespace + "}:" + id
}

// scopeTags always leads with the namespace, so no query can cross tenants.
func scopeTags(namespace string, f vector.Filter) []db.TagMatch {
	tags := make([]db.TagMatch, 0, 1+len(f.Must()))
	tags = append(tags, db.TagMatch{Key: fieldNamespace, Value: namespace})
	for _, c := range f.Must() {
		tags = append(tags, db.TagMatch{Key: c.Key(), Value: c.Text()})
	}
	return tags
}
