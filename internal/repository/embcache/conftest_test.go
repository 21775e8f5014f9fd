package embcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/db"
	"github.com/kailas-cloud/machinegpt/internal/domain"
)

// mockEmbedder returns {len(text)} for each text so results can be matched to inputs.
type mockEmbedder struct {
	err        error
	calls      int
	batchTexts [][]string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}, TotalTokens: 7}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchTexts = append(m.batchTexts, texts)
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts)), TotalTokens: len(texts)}
	for i, t := range texts {
		out.Embeddings[i] = []float32{float32(len(t))}
	}
	return out, nil
}

// memKV is an in-memory store satisfying the consumer interface.
type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
	ttls   map[string]time.Duration
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func newTestCachedEmbedder(t *testing.T, mode domain.EmbedMode) (*CachedEmbedder, *mockEmbedder, *memKV) {
	t.Helper()
	inner := &mockEmbedder{}
	kv := newMemKV()
	return New(inner, kv, Options{Model: "emb-small", Mode: mode, TTL: time.Hour}, zap.NewNop()), inner, kv
}
