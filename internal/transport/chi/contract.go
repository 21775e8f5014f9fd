package chi

import (
	"context"

	"github.com/kailas-cloud/machinegpt/internal/domain/answer"
	"github.com/kailas-cloud/machinegpt/internal/domain/document"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	healthuc "github.com/kailas-cloud/machinegpt/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/machinegpt/internal/usecase/ingest"
)

// TenantResolver turns a bearer credential into a tenant context.
type TenantResolver interface {
	Resolve(credential string) (tenant.Context, error)
}

// Querier answers operator questions.
type Querier interface {
	Ask(ctx context.Context, tc tenant.Context, question string, machineID int64) (answer.Result, error)
}

// Ingester runs the ingestion pipeline for one uploaded file.
type Ingester interface {
	Ingest(ctx context.Context, tc tenant.Context, documentID int64, data []byte) (ingestuc.Report, error)
}

// DocumentStore registers and reads document records (ISP).
type DocumentStore interface {
	Create(ctx context.Context, producerID int64, title, fileRef string, modelID int64) (document.Source, error)
	Get(ctx context.Context, producerID, id int64) (document.Source, error)
}

// VectorCleaner removes every vector of a document.
type VectorCleaner interface {
	DeleteDocument(ctx context.Context, tc tenant.Context, documentID int64) (int, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
