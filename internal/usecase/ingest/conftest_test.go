package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/repository/lease"
	"github.com/kailas-cloud/machinegpt/internal/repository/records/sqlite"
	"github.com/kailas-cloud/machinegpt/internal/repository/vector/memory"
	"github.com/kailas-cloud/machinegpt/internal/usecase/chunk"
	"github.com/kailas-cloud/machinegpt/internal/usecase/extract"
	"github.com/kailas-cloud/machinegpt/internal/usecase/index"
)

// letterEmbedder maps text to its a-z letter histogram.
type letterEmbedder struct {
	calls int
	err   error
	short bool
}

func (e *letterEmbedder) EmbedTexts(_ context.Context, texts []string, _ domain.EmbedMode) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out = append(out, v)
	}
	if e.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

// flakyStore fails every upsert of a batch starting at failAt.
type flakyStore struct {
	*memory.Store
	failAt string
}

func (f *flakyStore) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	if f.failAt != "" && len(records) > 0 && records[0].ID == f.failAt {
		return errors.New("shard unavailable")
	}
	return f.Store.Upsert(ctx, namespace, records)
}

type fixture struct {
	svc      *Service
	docs     *sqlite.Repo
	store    *flakyStore
	embedder *letterEmbedder
	leases   *lease.Local
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	chunker, err := chunk.New(chunk.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	store := &flakyStore{Store: memory.New()}
	idx := index.New(store, index.Config{BatchSize: 1, MaxAttempts: 1}, zap.NewNop())
	emb := &letterEmbedder{}
	leases := lease.NewLocal(time.Minute)

	svc := New(docs, extract.New(nil, nil, zap.NewNop()), chunker, emb, idx, leases, zap.NewNop())
	return &fixture{svc: svc, docs: docs, store: store, embedder: emb, leases: leases}
}

func (f *fixture) createDoc(t *testing.T, producerID int64) document.Source {
	t.Helper()
	d, err := f.docs.Create(context.Background(), producerID, "Press manual", "press.txt", 11)
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	return d
}

// manual renders pages in the plain-text export format.
func manual(pages ...string) []byte {
	var b strings.Builder
	for i, p := range pages {
		b.WriteString(extract.PageMarker)
		b.WriteString(" ")
		b.WriteString(string(rune('1' + i)))
		b.WriteString(" ==================\n")
		b.WriteString(p)
		b.WriteString("\n")
	}
	return []byte(b.String())
}
