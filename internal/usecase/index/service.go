package index

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
)

// Config controls batching and retry of vector upserts.
type Config struct {
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	Concurrency int
}

// DefaultConfig returns 100-record batches, 3 attempts, 200ms base backoff, sequential.
func DefaultConfig() Config {
	return Config{
		BatchSize:   domain.DefaultUpsertBatchSize,
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		Concurrency: 1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

// Service writes vectors into tenant namespaces in retried batches.
type Service struct {
	store  VectorStore
	cfg    Config
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an indexing service. Zero config fields take defaults.
func New(store VectorStore, cfg Config, logger *zap.Logger) *Service {
	return &Service{store: store, cfg: cfg.withDefaults(), logger: logger, sleep: sleepCtx}
}

// Upsert writes all records into namespace.
func (s *Service) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	return s.UpsertFrom(ctx, namespace, records, 0)
}

// UpsertFrom writes records[offset:] into namespace. On failure the returned
// *domain.VectorStoreError names the lowest failed batch, so a rerun from its
// Start loses nothing.
func (s *Service) UpsertFrom(ctx context.Context, namespace string, records []vector.Record, offset int) error {
	if namespace == "" {
		return domain.ErrTenantContextMissing
	}
	if offset < 0 || offset > len(records) {
		return fmt.Errorf("offset %d out of range [0,%d]", offset, len(records))
	}

	type span struct{ start, end int }
	var spans []span
	for start := offset; start < len(records); start += s.cfg.BatchSize {
		spans = append(spans, span{start, min(start+s.cfg.BatchSize, len(records))})
	}
	failures := make([]*domain.VectorStoreError, len(spans))

	var lowestFailed atomic.Int64
	lowestFailed.Store(math.MaxInt64)
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, sp := range spans {
		g.Go(func() error {
			// Work above a failed span would be redone on resume anyway.
			if lowestFailed.Load() < int64(sp.start) {
				return nil
			}
			if err := s.upsertBatch(ctx, namespace, records[sp.start:sp.end], sp.start, sp.end); err != nil {
				failures[i] = err
				for cur := lowestFailed.Load(); int64(sp.start) < cur; cur = lowestFailed.Load() {
					if lowestFailed.CompareAndSwap(cur, int64(sp.start)) {
						break
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failures {
		if f != nil {
			return f
		}
	}
	return nil
}

func (s *Service) upsertBatch(ctx context.Context, namespace string, batch []vector.Record, start, end int) *domain.VectorStoreError {
	backend := s.store.Name()
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.VectorUpsertRetriesTotal.WithLabelValues(backend).Inc()
			delay := s.cfg.BaseBackoff << (attempt - 2)
			s.logger.Warn("Retrying vector upsert batch",
				zap.String("namespace", namespace),
				zap.Int("start", start),
				zap.Int("end", end),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				err = sleepErr
				metrics.VectorUpsertBatchesTotal.WithLabelValues(backend, "failed").Inc()
				return &domain.VectorStoreError{Namespace: namespace, Start: start, End: end, Attempts: attempt - 1, Err: err}
			}
		}

		if err = s.store.Upsert(ctx, namespace, batch); err == nil {
			metrics.VectorUpsertBatchesTotal.WithLabelValues(backend, "ok").Inc()
			return nil
		}
	}

	metrics.VectorUpsertBatchesTotal.WithLabelValues(backend, "failed").Inc()
	s.logger.Error("Vector upsert batch failed",
		zap.String("namespace", namespace),
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Error(err),
	)
	return &domain.VectorStoreError{Namespace: namespace, Start: start, End: end, Attempts: s.cfg.MaxAttempts, Err: err}
}

// Delete removes vectors from the caller's namespace only.
func (s *Service) Delete(ctx context.Context, tc tenant.Context, sel vector.Selector) (int, error) {
	if err := tc.Validate(); err != nil {
		return 0, err
	}
	n, err := s.store.Delete(ctx, tc.Namespace(), sel)
	if err != nil {
		return 0, fmt.Errorf("%w: delete in %s: %w", domain.ErrVectorStore, tc.Namespace(), err)
	}
	return n, nil
}

// DeleteDocument removes every vector of one document from the caller's namespace.
func (s *Service) DeleteDocument(ctx context.Context, tc tenant.Context, documentID int64) (int, error) {
	c, err := vector.Eq(vector.FieldDocID, documentID)
	if err != nil {
		return 0, err
	}
	f, err := vector.NewFilter(c)
	if err != nil {
		return 0, err
	}
	return s.Delete(ctx, tc, vector.ByFilter(f))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
