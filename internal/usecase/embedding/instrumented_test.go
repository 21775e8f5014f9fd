package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// mockEmbedder returns vector {i} for the i-th text it has ever seen.
type mockEmbedder struct {
	err        error
	short      bool
	seen       int
	batchCalls [][]string
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	m.seen++
	return domain.EmbeddingResult{Embedding: []float32{float32(m.seen - 1)}, TotalTokens: 1}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls = append(m.batchCalls, texts)
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	n := len(texts)
	if m.short {
		n--
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, n), TotalTokens: n}
	for i := range n {
		out.Embeddings[i] = []float32{float32(m.seen)}
		m.seen++
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("chunk %d", i)
	}
	return out
}

func TestInstrumentedEmbedder_Embed(t *testing.T) {
	p := NewInstrumentedEmbedder(&mockEmbedder{}, "test", "model", zap.NewNop())

	res, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 1 {
		t.Fatalf("expected 1 dimension, got %d", len(res.Embedding))
	}
}

func TestInstrumentedEmbedder_EmbedError(t *testing.T) {
	apiErr := errors.New("api error")
	p := NewInstrumentedEmbedder(&mockEmbedder{err: apiErr}, "test", "model", zap.NewNop())

	if _, err := p.Embed(context.Background(), "hello"); !errors.Is(err, apiErr) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_SubBatchesPreserveOrder(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "model", zap.NewNop()).WithMaxBatch(2)

	res, err := p.BatchEmbed(context.Background(), texts(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.batchCalls) != 3 {
		t.Fatalf("expected 3 provider calls, got %d", len(inner.batchCalls))
	}
	for i, v := range res.Embeddings {
		if v[0] != float32(i) {
			t.Fatalf("embedding %d out of order: %v", i, v)
		}
	}
	if res.TotalTokens != 5 {
		t.Errorf("expected 5 tokens, got %d", res.TotalTokens)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "model", zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil || len(inner.batchCalls) != 0 {
		t.Errorf("expected no provider call for empty input")
	}
}

func TestInstrumentedEmbedder_BatchEmbed_ShortReply(t *testing.T) {
	p := NewInstrumentedEmbedder(&mockEmbedder{short: true}, "test", "model", zap.NewNop())

	_, err := p.BatchEmbed(context.Background(), texts(3))
	if !errors.Is(err, domain.ErrEmbeddingCountMismatch) {
		t.Fatalf("expected ErrEmbeddingCountMismatch, got %v", err)
	}
}
