package document

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

// Status is the ingestion lifecycle state of a source document.
type Status string

// Lifecycle: pending -> processing -> {completed, failed}. No partial success.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether a run has finished.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Source is a manual uploaded by a producer (immutable value object).
type Source struct {
	id          int64
	producerID  int64
	title       string
	fileRef     string
	modelID     int64
	pageCount   int
	status      Status
	errMsg      string
	totalChunks int
	resumeFrom  int
	processedAt time.Time
}

// New validates and creates a pending Source. modelID 0 means "not tied to a machine model".
func New(id, producerID int64, title, fileRef string, modelID int64) (Source, error) {
	if id <= 0 {
		return Source{}, fmt.Errorf("document ID must be positive")
	}
	if producerID <= 0 {
		return Source{}, domain.ErrTenantContextMissing
	}
	if title == "" {
		return Source{}, fmt.Errorf("document title is required")
	}
	if fileRef == "" {
		return Source{}, fmt.Errorf("document file reference is required")
	}
	return Source{
		id: id, producerID: producerID, title: title, fileRef: fileRef,
		modelID: modelID, status: StatusPending,
	}, nil
}

// Reconstruct creates a Source without validation (storage hydration).
func Reconstruct(
	id, producerID int64, title, fileRef string, modelID int64,
	pageCount int, status Status, errMsg string, totalChunks, resumeFrom int, processedAt time.Time,
) Source {
	return Source{
		id: id, producerID: producerID, title: title, fileRef: fileRef, modelID: modelID,
		pageCount: pageCount, status: status, errMsg: errMsg,
		totalChunks: totalChunks, resumeFrom: resumeFrom, processedAt: processedAt,
	}
}

// ID returns the document identifier.
func (s Source) ID() int64 { return s.id }

// ProducerID returns the owning producer.
func (s Source) ProducerID() int64 { return s.producerID }

// Title is shown to operators as the source name.
func (s Source) Title() string { return s.title }

// FileRef locates the uploaded file in storage.
func (s Source) FileRef() string { return s.fileRef }

// ModelID returns the machine model the manual belongs to, if any.
func (s Source) ModelID() (int64, bool) { return s.modelID, s.modelID > 0 }

// PageCount returns the number of extracted pages of the last run.
func (s Source) PageCount() int { return s.pageCount }

// Status returns the lifecycle state.
func (s Source) Status() Status { return s.status }

// Error returns the failure message of the last run.
func (s Source) Error() string { return s.errMsg }

// TotalChunks returns the chunk count of the last completed run.
func (s Source) TotalChunks() int { return s.totalChunks }

// ResumeFrom is the upsert offset to continue from after a vector store failure.
func (s Source) ResumeFrom() int { return s.resumeFrom }

// ProcessedAt returns when the last run finished.
func (s Source) ProcessedAt() time.Time { return s.processedAt }

// OwnedBy reports whether producerID owns the document.
func (s Source) OwnedBy(producerID int64) bool { return s.producerID == producerID }

// Reset starts a new run for a finished document. Pending stays pending.
func (s Source) Reset() (Source, error) {
	switch s.status {
	case StatusPending:
		return s, nil
	case StatusCompleted, StatusFailed:
		n := s
		n.status = StatusPending
		n.errMsg = ""
		return n, nil
	}
	return Source{}, transitionErr(s.status, StatusPending)
}

// Start moves a pending document to processing.
func (s Source) Start() (Source, error) {
	if s.status != StatusPending {
		return Source{}, transitionErr(s.status, StatusProcessing)
	}
	n := s
	n.status = StatusProcessing
	n.errMsg = ""
	return n, nil
}

// Complete records a successful run.
func (s Source) Complete(pageCount, totalChunks int, at time.Time) (Source, error) {
	if s.status != StatusProcessing {
		return Source{}, transitionErr(s.status, StatusCompleted)
	}
	n := s
	n.status = StatusCompleted
	n.pageCount = pageCount
	n.totalChunks = totalChunks
	n.resumeFrom = 0
	n.errMsg = ""
	n.processedAt = at
	return n, nil
}

// Fail records a failed run. resumeFrom is the first vector offset not known to be stored.
func (s Source) Fail(reason string, resumeFrom int, at time.Time) (Source, error) {
	if s.status != StatusProcessing {
		return Source{}, transitionErr(s.status, StatusFailed)
	}
	n := s
	n.status = StatusFailed
	n.errMsg = reason
	n.resumeFrom = resumeFrom
	n.processedAt = at
	return n, nil
}

func transitionErr(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
}
