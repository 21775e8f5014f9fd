package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource (or one owned by another tenant).
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated signals an absent, expired or malformed credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTenantContextMissing signals a core call without a producer id.
	ErrTenantContextMissing = errors.New("tenant context missing")
	// ErrMachineForbidden signals a machine filter outside the caller's authorized machines.
	ErrMachineForbidden = errors.New("machine access denied")

	// ErrInvalidChunkConfig signals overlap/size parameters that cannot advance the window.
	ErrInvalidChunkConfig = errors.New("invalid chunk config")
	// ErrUnsupportedFormat signals a source file the extractor cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrInvalidTransition signals an illegal document status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrLeaseHeld signals that another ingestion holds the document lease.
	ErrLeaseHeld = errors.New("document lease held")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingCountMismatch signals a provider returning a different number of vectors than inputs.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	// ErrVectorStore signals a vector store failure.
	ErrVectorStore = errors.New("vector store error")
	// ErrGeneration signals a generation provider failure.
	ErrGeneration = errors.New("generation error")

	// ErrNoRelevantContent is a valid retrieval outcome: nothing scored above the threshold.
	ErrNoRelevantContent = errors.New("no relevant content")
)

// VectorStoreError names the batch range [Start, End) that could not be upserted
// so ingestion can resume from Start.
type VectorStoreError struct {
	Namespace string
	Start     int
	End       int
	Attempts  int
	Err       error
}

func (e *VectorStoreError) Error() string {
	return fmt.Sprintf("%s: namespace %s batch [%d,%d) failed after %d attempts: %v",
		ErrVectorStore.Error(), e.Namespace, e.Start, e.End, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the underlying store error.
func (e *VectorStoreError) Unwrap() []error { return []error{ErrVectorStore, e.Err} }

// ResumeFrom returns the offset ingestion should restart the upsert from.
func (e *VectorStoreError) ResumeFrom() int { return e.Start }

// NewEmbeddingCountMismatch reports got vectors for want inputs.
func NewEmbeddingCountMismatch(got, want int) error {
	return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingCountMismatch, got, want)
}
