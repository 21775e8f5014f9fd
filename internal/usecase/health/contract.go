package health

import "context"

// Pinger checks a storage dependency (vector store, document records).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an external model provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
