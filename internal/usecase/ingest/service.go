// Package ingest runs a manual through extract, chunk, embed and index under a per-document lease.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	"github.com/kailas-cloud/machinegpt/internal/domain/vector"
	"github.com/kailas-cloud/machinegpt/internal/metrics"
	"github.com/kailas-cloud/machinegpt/internal/repository/lease"
)

// ErrNoText is recorded when a file yields no chunkable text.
var ErrNoText = errors.New("no text extracted")

// Report describes one ingestion run. A failed run is a Report, not an error.
type Report struct {
	RunID      string
	DocumentID int64
	Status     document.Status
	Pages      int
	Chunks     int
	// ResumedFrom is the upsert offset this run started at.
	ResumedFrom  int
	StaleDeleted int
	// ResumeFrom is the offset the next run will start at after a vector store failure.
	ResumeFrom int
	Error      string
	Duration   time.Duration
}

// Service orchestrates ingestion.
type Service struct {
	docs      DocumentStore
	extractor Extractor
	chunker   Chunker
	embedder  domain.TextEmbedder
	indexer   Indexer
	leaser    Leaser
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an ingestion Service.
func New(
	docs DocumentStore,
	extractor Extractor,
	chunker Chunker,
	embedder domain.TextEmbedder,
	indexer Indexer,
	leaser Leaser,
	logger *zap.Logger,
) *Service {
	return &Service{
		docs:      docs,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		indexer:   indexer,
		leaser:    leaser,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest processes data as the content of document documentID.
//
// The returned error covers only what prevents a run from starting: a missing
// tenant, an unknown document, a held lease or a status write failure. Once the
// document is processing, every failure is recorded on it and reported through
// Report.Status == failed. A run after a vector store failure resumes the
// upsert from the recorded offset. The lease is renewed for the whole run; a
// run that loses it stops and returns a failed Report without writing the
// document, which may belong to another run by then.
func (s *Service) Ingest(ctx context.Context, tc tenant.Context, documentID int64, data []byte) (Report, error) {
	if err := tc.Validate(); err != nil {
		return Report{}, err
	}

	l, err := s.leaser.Acquire(ctx, documentID)
	if err != nil {
		return Report{}, fmt.Errorf("acquire document %d: %w", documentID, err)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Lease release failed", zap.Int64("document_id", documentID), zap.Error(err))
		}
	}()

	// Work runs under the renewed lease and stops when the lease is lost.
	held, stop := l.Hold(ctx)
	defer stop()
	ctx = held

	doc, err := s.docs.Get(ctx, tc.ProducerID(), documentID)
	if err != nil {
		return Report{}, fmt.Errorf("get document %d: %w", documentID, err)
	}

	if doc.Status() == document.StatusProcessing {
		// Holding the lease means the run that set processing is gone.
		if doc, err = doc.Fail("interrupted", doc.ResumeFrom(), s.now()); err != nil {
			return Report{}, err
		}
	}

	prevChunks := doc.TotalChunks()
	resumeFrom := 0
	if doc.Status() == document.StatusFailed {
		resumeFrom = doc.ResumeFrom()
	}

	doc, err = doc.Reset()
	if err != nil {
		return Report{}, err
	}
	if doc, err = doc.Start(); err != nil {
		return Report{}, err
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return Report{}, fmt.Errorf("mark document %d processing: %w", documentID, err)
	}

	log := s.logger.With(
		zap.String("run_id", l.Token()),
		zap.Int64("producer_id", tc.ProducerID()),
		zap.Int64("document_id", documentID),
	)
	log.Info("Ingestion started", zap.Int("resume_from", resumeFrom))

	start := s.now()
	rep := Report{RunID: l.Token(), DocumentID: documentID, ResumedFrom: resumeFrom}
	runErr := s.run(ctx, tc, doc, data, prevChunks, resumeFrom, &rep)
	rep.Duration = s.now().Sub(start)
	metrics.IngestDuration.WithLabelValues("total").Observe(rep.Duration.Seconds())

	if lost := context.Cause(ctx); errors.Is(lost, lease.ErrLost) {
		// Another run may own the document now; its record is left alone.
		rep.Status = document.StatusFailed
		rep.Error = lost.Error()
		metrics.IngestDocumentsTotal.WithLabelValues(string(document.StatusFailed)).Inc()
		log.Error("Ingestion abandoned", zap.Error(lost), zap.NamedError("run_error", runErr))
		return rep, nil
	}

	// The outcome is recorded even when the caller has gone away.
	saveCtx := context.WithoutCancel(ctx)
	if runErr == nil {
		done, err := doc.Complete(rep.Pages, rep.Chunks, s.now())
		if err == nil {
			err = s.docs.Save(saveCtx, done)
		}
		if err == nil {
			rep.Status = document.StatusCompleted
			metrics.IngestDocumentsTotal.WithLabelValues(string(document.StatusCompleted)).Inc()
			metrics.IngestChunksTotal.Add(float64(rep.Chunks))
			log.Info("Ingestion completed",
				zap.Int("pages", rep.Pages),
				zap.Int("chunks", rep.Chunks),
				zap.Int("stale_deleted", rep.StaleDeleted),
				zap.Duration("took", rep.Duration),
			)
			return rep, nil
		}
		runErr = fmt.Errorf("record completion: %w", err)
	}

	var vse *domain.VectorStoreError
	if errors.As(runErr, &vse) {
		rep.ResumeFrom = vse.ResumeFrom()
	}
	rep.Status = document.StatusFailed
	rep.Error = runErr.Error()
	metrics.IngestDocumentsTotal.WithLabelValues(string(document.StatusFailed)).Inc()

	failed, err := doc.Fail(rep.Error, rep.ResumeFrom, s.now())
	if err == nil {
		err = s.docs.Save(saveCtx, failed)
	}
	if err != nil {
		log.Error("Failed to record ingestion failure", zap.Error(err))
	}
	log.Error("Ingestion failed", zap.Error(runErr), zap.Int("resume_from", rep.ResumeFrom))
	return rep, nil
}

func (s *Service) run(
	ctx context.Context, tc tenant.Context, doc document.Source, data []byte,
	prevChunks, resumeFrom int, rep *Report,
) error {
	phase := s.now()
	pages, err := s.extractor.Extract(ctx, doc, data)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	s.observe("extract", &phase)
	rep.Pages = len(pages)

	chunks := s.chunker.Chunk(doc.ID(), pages)
	if len(chunks) == 0 {
		return ErrNoText
	}
	s.observe("chunk", &phase)
	rep.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.EmbedTexts(ctx, texts, domain.EmbedModeDocument)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(chunks) {
		return domain.NewEmbeddingCountMismatch(len(vecs), len(chunks))
	}
	s.observe("embed", &phase)

	if resumeFrom > len(chunks) {
		resumeFrom = 0
	}
	records := buildRecords(doc, chunks, vecs)
	if err := s.indexer.UpsertFrom(ctx, tc.Namespace(), records, resumeFrom); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	if prevChunks > len(chunks) {
		stale := make([]string, 0, prevChunks-len(chunks))
		for i := len(chunks); i < prevChunks; i++ {
			stale = append(stale, document.VectorID(doc.ID(), i))
		}
		n, err := s.indexer.Delete(ctx, tc, vector.ByIDs(stale...))
		if err != nil {
			return fmt.Errorf("delete stale vectors: %w", err)
		}
		rep.StaleDeleted = n
	}
	s.observe("index", &phase)

	if err := s.docs.ReplaceChunks(ctx, doc.ID(), chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	s.observe("persist", &phase)
	return nil
}

func (s *Service) observe(name string, since *time.Time) {
	now := s.now()
	metrics.IngestDuration.WithLabelValues(name).Observe(now.Sub(*since).Seconds())
	*since = now
}

// buildRecords pairs chunks with their vectors. Metadata carries everything
// the query path needs to cite the passage without a database round trip.
func buildRecords(doc document.Source, chunks []document.Chunk, vecs [][]float32) []vector.Record {
	// Manuals without a machine model are stored with ModelID 0, which no
	// machine filter matches.
	var modelID int64
	if id, ok := doc.ModelID(); ok {
		modelID = id
	}
	out := make([]vector.Record, len(chunks))
	for i, c := range chunks {
		out[i] = vector.Record{
			ID:     c.VectorID,
			Values: vecs[i],
			Metadata: vector.Metadata{
				Text:       c.Text,
				DocID:      doc.ID(),
				DocName:    doc.Title(),
				Page:       c.Page,
				ProducerID: doc.ProducerID(),
				ModelID:    modelID,
				HasImages:  len(c.Images) > 0,
				Images:     c.Images,
			},
		}
	}
	return out
}
