package redis

import (
	"context"
	"testing"

	"github.com/kailas-cloud/machinegpt/internal/db"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn        func(ctx context.Context, items []db.HashSetItem) error
	delFn         func(ctx context.Context, keys ...string) (int, error)
	createIndexFn func(ctx context.Context, schema *db.Schema) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchKeysFn  func(ctx context.Context, index string, tags []db.TagMatch, limit int) ([]string, error)
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, items)
	}
	return nil
}

func (m *mockStore) DelMulti(ctx context.Context, keys ...string) (int, error) {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return len(keys), nil
}

func (m *mockStore) CreateIndex(ctx context.Context, schema *db.Schema) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, schema)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchKeys(ctx context.Context, index string, tags []db.TagMatch, limit int) ([]string, error) {
	if m.searchKeysFn != nil {
		return m.searchKeysFn(ctx, index, tags, limit)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, IndexConfig{Dimensions: 4, M: 16, EFConstruction: 200, EFRuntime: 32}), ms
}

func mustTenantFilter(t *testing.T, producerID, modelID int64) vector.Filter {
	t.Helper()
	f, err := vector.TenantFilter(producerID, modelID)
	if err != nil {
		t.Fatalf("TenantFilter: %v", err)
	}
	return f
}

func testRecord(id string, docID int64, page int) vector.Record {
	return vector.Record{
		ID:     id,
		Values: []float32{0.1, 0.2, 0.3, 0.4},
		Metadata: vector.Metadata{
			Text:       "check hydraulic pressure",
			DocID:      docID,
			DocName:    "Press manual",
			Page:       page,
			ProducerID: 7,
			ModelID:    3,
		},
	}
}
