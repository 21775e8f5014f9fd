package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentVectorStore = "vector_store"
	ComponentRecords     = "records"
	ComponentEmbedding   = "embedding"
)

const checkTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	vectors   Pinger
	records   Pinger
	embedding ProviderChecker
}

// New creates a Service. Any dependency can be nil (e.g. the in-memory vector store).
func New(vectors, records Pinger, embedding ProviderChecker) *Service {
	return &Service{vectors: vectors, records: records, embedding: embedding}
}

// Check runs health checks against all configured components.
// Storage failures make the service unhealthy; a provider failure only degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	checkComponent := func(name string, fn func(context.Context) error, critical bool) {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			checks[name] = CheckError
			if critical {
				status = Unhealthy
			} else if status == Healthy {
				status = Degraded
			}
			return
		}
		checks[name] = CheckOK
	}

	if s.vectors != nil {
		checkComponent(ComponentVectorStore, s.vectors.Ping, true)
	}
	if s.records != nil {
		checkComponent(ComponentRecords, s.records.Ping, true)
	}
	if s.embedding != nil {
		checkComponent(ComponentEmbedding, s.embedding.HealthCheck, false)
	}

	return Report{Status: status, Checks: checks}
}
