package ingest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/repository/lease"
	"github.com/kailas-cloud/machinegpt/internal/usecase/extract"
)

// --- Mocks ---

// stolenLocker grants every lease and renews it until stolen, as if the key
// then expired and another worker took it.
type stolenLocker struct {
	mu       sync.Mutex
	stolen   atomic.Bool
	released int
}

func (l *stolenLocker) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (l *stolenLocker) CompareAndDelete(context.Context, string, string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return false, nil
}

func (l *stolenLocker) CompareAndExpire(context.Context, string, string, time.Duration) (bool, error) {
	return !l.stolen.Load(), nil
}

// stallingEmbedder hands the lease away and blocks until the run is cancelled.
type stallingEmbedder struct {
	locker *stolenLocker
}

func (e stallingEmbedder) EmbedTexts(ctx context.Context, _ []string, _ domain.EmbedMode) ([][]float32, error) {
	e.locker.stolen.Store(true)
	<-ctx.Done()
	return nil, ctx.Err()
}

// --- Tests ---

func TestIngest_LostLeaseStopsRunWithoutRecording(t *testing.T) {
	f := newFixture(t)
	doc := f.createDoc(t, 1)
	locker := &stolenLocker{}
	svc := New(f.docs, extract.New(nil, nil, zap.NewNop()), f.svc.chunker, stallingEmbedder{locker}, f.svc.indexer,
		lease.NewRedis(locker, 30*time.Millisecond), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := svc.Ingest(ctx, producer(t, 1), doc.ID(), manual("check the hydraulic oil level"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("run was not stopped by the lost lease")
	}
	if rep.Status != document.StatusFailed || !strings.Contains(rep.Error, "lease lost") {
		t.Errorf("unexpected report %+v", rep)
	}

	// The document stays as the run left it; the new owner decides its outcome.
	got, err := f.docs.Get(context.Background(), 1, doc.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status() != document.StatusProcessing {
		t.Errorf("status = %s, want processing", got.Status())
	}
	if ids := f.store.IDs("producer_1"); len(ids) != 0 {
		t.Errorf("vectors written after lease loss: %v", ids)
	}
	if locker.released != 1 {
		t.Errorf("release calls = %d, want 1", locker.released)
	}
}

func TestBuildRecords_ModelID(t *testing.T) {
	chunks := []document.Chunk{{Index: 0, Text: "bleed the brakes", Page: 3, VectorID: document.VectorID(5, 0)}}
	vecs := [][]float32{{1}}

	tests := []struct {
		name    string
		modelID int64
		want    int64
	}{
		{"with machine model", 11, 11},
		{"without machine model", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := document.New(5, 1, "Brake manual", "brakes.pdf", tt.modelID)
			if err != nil {
				t.Fatal(err)
			}
			recs := buildRecords(doc, chunks, vecs)
			if len(recs) != 1 {
				t.Fatalf("records = %d, want 1", len(recs))
			}
			m := recs[0].Metadata
			if m.ModelID != tt.want {
				t.Errorf("ModelID = %d, want %d", m.ModelID, tt.want)
			}
			if m.DocID != 5 || m.ProducerID != 1 || m.Page != 3 || m.DocName != "Brake manual" {
				t.Errorf("unexpected metadata %+v", m)
			}
		})
	}
}
