package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
)

// --- Mocks ---

type mockStore struct {
	mu      sync.Mutex
	calls   [][]string
	failFor map[string]int // first record id -> remaining failures
	stored  map[string]bool
	delNS   string
	delSel  vector.Selector
	delErr  error
}

func newMockStore() *mockStore {
	return &mockStore{failFor: map[string]int{}, stored: map[string]bool{}}
}

func (m *mockStore) Name() string { return "mock" }

func (m *mockStore) Upsert(_ context.Context, _ string, records []vector.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	m.calls = append(m.calls, ids)
	if n := m.failFor[ids[0]]; n != 0 {
		if n > 0 {
			m.failFor[ids[0]] = n - 1
		}
		return errors.New("store unavailable")
	}
	for _, id := range ids {
		m.stored[id] = true
	}
	return nil
}

func (m *mockStore) Delete(_ context.Context, namespace string, sel vector.Selector) (int, error) {
	m.delNS, m.delSel = namespace, sel
	return 2, m.delErr
}

func records(n int) []vector.Record {
	out := make([]vector.Record, n)
	for i := range out {
		out[i] = vector.Record{ID: fmt.Sprintf("r%d", i), Values: []float32{1}}
	}
	return out
}

func newTestService(store VectorStore, cfg Config) (*Service, *[]time.Duration) {
	s := New(store, cfg, zap.NewNop())
	var sleeps []time.Duration
	var mu sync.Mutex
	s.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return nil
	}
	return s, &sleeps
}

// --- Tests ---

func TestUpsert_Batches(t *testing.T) {
	ms := newMockStore()
	s, _ := newTestService(ms, Config{BatchSize: 100})

	if err := s.Upsert(context.Background(), "producer_1", records(250)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.calls) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(ms.calls))
	}
	sizes := []int{len(ms.calls[0]), len(ms.calls[1]), len(ms.calls[2])}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Errorf("unexpected batch sizes %v", sizes)
	}
	if len(ms.stored) != 250 {
		t.Errorf("expected 250 stored, got %d", len(ms.stored))
	}
}

func TestUpsert_RetriesWithExponentialBackoff(t *testing.T) {
	ms := newMockStore()
	ms.failFor["r0"] = 2
	s, sleeps := newTestService(ms, Config{BatchSize: 10, MaxAttempts: 3, BaseBackoff: 200 * time.Millisecond})

	if err := s.Upsert(context.Background(), "producer_1", records(5)); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if len(ms.calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(ms.calls))
	}
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}
	if len(*sleeps) != 2 || (*sleeps)[0] != want[0] || (*sleeps)[1] != want[1] {
		t.Errorf("backoff = %v, want %v", *sleeps, want)
	}
}

func TestUpsert_ExhaustionReportsBatchRange(t *testing.T) {
	ms := newMockStore()
	ms.failFor["r100"] = -1
	s, _ := newTestService(ms, Config{BatchSize: 100, MaxAttempts: 3})

	err := s.Upsert(context.Background(), "producer_1", records(250))
	var vse *domain.VectorStoreError
	if !errors.As(err, &vse) {
		t.Fatalf("expected VectorStoreError, got %v", err)
	}
	if !errors.Is(err, domain.ErrVectorStore) {
		t.Error("error must match ErrVectorStore")
	}
	if vse.Start != 100 || vse.End != 200 || vse.Attempts != 3 || vse.ResumeFrom() != 100 {
		t.Errorf("unexpected error %+v", vse)
	}
	if ms.stored["r200"] {
		t.Error("batches after the failed one must not run sequentially")
	}
}

func TestUpsert_ConcurrentReportsLowestFailure(t *testing.T) {
	ms := newMockStore()
	ms.failFor["r20"] = -1
	ms.failFor["r40"] = -1
	s, _ := newTestService(ms, Config{BatchSize: 10, MaxAttempts: 1, Concurrency: 4})

	err := s.Upsert(context.Background(), "producer_1", records(60))
	var vse *domain.VectorStoreError
	if !errors.As(err, &vse) {
		t.Fatalf("expected VectorStoreError, got %v", err)
	}
	if vse.Start != 20 || vse.End != 30 {
		t.Errorf("expected lowest failed batch [20,30), got [%d,%d)", vse.Start, vse.End)
	}
}

func TestUpsertFrom_Resumes(t *testing.T) {
	ms := newMockStore()
	s, _ := newTestService(ms, Config{BatchSize: 100})

	if err := s.UpsertFrom(context.Background(), "producer_1", records(250), 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.calls) != 2 || ms.calls[0][0] != "r100" || ms.calls[1][0] != "r200" {
		t.Errorf("unexpected batches %v", ms.calls)
	}
	if ms.stored["r0"] {
		t.Error("records before offset must not be rewritten")
	}
}

func TestUpsertFrom_Validation(t *testing.T) {
	s, _ := newTestService(newMockStore(), Config{})
	if err := s.UpsertFrom(context.Background(), "", records(1), 0); !errors.Is(err, domain.ErrTenantContextMissing) {
		t.Errorf("expected ErrTenantContextMissing, got %v", err)
	}
	if err := s.UpsertFrom(context.Background(), "ns", records(1), 5); err == nil {
		t.Error("expected offset error")
	}
	if err := s.Upsert(context.Background(), "ns", nil); err != nil {
		t.Errorf("empty upsert must succeed, got %v", err)
	}
}

func TestUpsert_ContextCancelledDuringBackoff(t *testing.T) {
	ms := newMockStore()
	ms.failFor["r0"] = -1
	s := New(ms, Config{BatchSize: 10, MaxAttempts: 3, BaseBackoff: time.Hour}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Upsert(ctx, "producer_1", records(3))
	if !errors.Is(err, context.Canceled) || !errors.Is(err, domain.ErrVectorStore) {
		t.Fatalf("expected cancelled vector store error, got %v", err)
	}
}

func TestDelete_TenantScoped(t *testing.T) {
	ms := newMockStore()
	s, _ := newTestService(ms, Config{})
	tc, err := tenant.ForProducer(7)
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.DeleteDocument(context.Background(), tc, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || ms.delNS != "producer_7" {
		t.Errorf("unexpected delete n=%d ns=%s", n, ms.delNS)
	}
	if must := ms.delSel.Filter.Must(); len(must) != 1 || must[0].Key() != vector.FieldDocID || must[0].Value() != 3 {
		t.Errorf("unexpected selector %+v", ms.delSel)
	}
}

func TestDelete_RequiresTenant(t *testing.T) {
	s, _ := newTestService(newMockStore(), Config{})
	if _, err := s.Delete(context.Background(), tenant.Context{}, vector.ByIDs("a")); !errors.Is(err, domain.ErrTenantContextMissing) {
		t.Fatalf("expected ErrTenantContextMissing, got %v", err)
	}
}

func TestDelete_StoreError(t *testing.T) {
	ms := newMockStore()
	ms.delErr = errors.New("down")
	s, _ := newTestService(ms, Config{})
	tc, _ := tenant.ForProducer(1)
	if _, err := s.Delete(context.Background(), tc, vector.ByIDs("a")); !errors.Is(err, domain.ErrVectorStore) {
		t.Fatalf("expected ErrVectorStore, got %v", err)
	}
}
