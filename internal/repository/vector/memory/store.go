// Package memory is a brute-force in-process vector store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

type entry struct {
	values []float32
	meta   vector.Metadata
}

// Store keeps one map of vectors per namespace.
type Store struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]entry

	// failUpserts makes the next N Upsert calls fail; used to exercise retry paths.
	failUpserts int
}

// New creates an empty store.
func New() *Store {
	return &Store{namespaces: make(map[string]map[string]entry)}
}

// Name identifies the backend in metrics and logs.
func (s *Store) Name() string { return "memory" }

// EnsureIndex is a no-op.
func (s *Store) EnsureIndex(context.Context) error { return nil }

// FailNextUpserts makes the next n Upsert calls return an error.
func (s *Store) FailNextUpserts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpserts = n
}

// Upsert stores records, overwriting by id.
func (s *Store) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpserts > 0 {
		s.failUpserts--
		return fmt.Errorf("memory store: injected upsert failure")
	}

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]entry)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		ns[r.ID] = entry{values: slices.Clone(r.Values), meta: r.Metadata}
	}
	return nil
}

// Search scores every vector in the namespace that passes the filter.
func (s *Store) Search(ctx context.Context, q vector.Query) ([]vector.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.namespaces[q.Namespace]
	matches := make([]vector.Match, 0, len(ns))
	for id, e := range ns {
		if !q.Filter.Matches(e.meta) {
			continue
		}
		matches = append(matches, vector.Match{ID: id, Score: cosine(q.Vector, e.values), Metadata: e.meta})
	}

	slices.SortFunc(matches, func(a, b vector.Match) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

// Delete removes the selected vectors from namespace.
func (s *Store) Delete(ctx context.Context, namespace string, sel vector.Selector) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := sel.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	n := 0
	for id, e := range ns {
		if sel.Matches(id, e.meta) {
			delete(ns, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of vectors in namespace.
func (s *Store) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

// IDs returns the sorted vector ids in namespace.
func (s *Store) IDs(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.namespaces[namespace]))
	for id := range s.namespaces[namespace] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// cosine returns similarity clamped to [0, 1], matching the FT backend.
func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return max(0, dot/(math.Sqrt(na)*math.Sqrt(nb)))
}
