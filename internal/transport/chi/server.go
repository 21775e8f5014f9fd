// Package chi is the HTTP API: query, document ingestion and vector cleanup.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain/answer"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	logpkg "github.com/kailas-cloud/machinegpt/internal/logger"
	"github.com/kailas-cloud/machinegpt/internal/usecase/extract"
	healthuc "github.com/kailas-cloud/machinegpt/internal/usecase/health"
)

const (
	maxJSONBody          = 1 << 20
	defaultMaxUpload     = 50 << 20
	multipartMemoryLimit = 32 << 20
)

// Config holds HTTP-level limits and static image serving.
type Config struct {
	MaxUploadBytes int64
	// ImagesDir is served read-only under ImagesPath when both are set.
	ImagesDir  string
	ImagesPath string
}

// Server holds the handlers of the HTTP API.
type Server struct {
	resolver TenantResolver
	querier  Querier
	ingester Ingester
	docs     DocumentStore
	vectors  VectorCleaner
	health   HealthChecker
	cfg      Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	resolver TenantResolver,
	querier Querier,
	ingester Ingester,
	docs DocumentStore,
	vectors VectorCleaner,
	health HealthChecker,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	return &Server{
		resolver: resolver,
		querier:  querier,
		ingester: ingester,
		docs:     docs,
		vectors:  vectors,
		health:   health,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Register mounts the API on r. Health, metrics and images are public;
// everything under /v1 requires a tenant token.
func (s *Server) Register(r gochi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	if s.cfg.ImagesDir != "" && s.cfg.ImagesPath != "" {
		prefix := "/" + strings.Trim(s.cfg.ImagesPath, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(s.cfg.ImagesDir))))
	}

	r.Group(func(r gochi.Router) {
		r.Use(TenantAuthMiddleware(s.resolver))
		r.Route("/v1", func(r gochi.Router) {
			r.Post("/query", s.Query)
			r.Post("/documents", s.CreateDocument)
			r.Get("/documents/{id}", s.GetDocument)
			r.Post("/documents/{id}/ingest", s.IngestDocument)
			r.Delete("/documents/{id}/vectors", s.DeleteVectors)
		})
	})
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.querier.Ask(r.Context(), tc, req.Question, req.MachineID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Outcome == answer.OutcomeProviderFailure {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, queryToResponse(res))
}

// CreateDocument handles POST /v1/documents. The document starts pending.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	var req CreateDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}

	doc, err := s.docs.Create(r.Context(), tc.ProducerID(), req.Title, req.FileRef, req.ModelID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentToResponse(doc))
}

// GetDocument handles GET /v1/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	doc, err := s.docs.Get(r.Context(), tc.ProducerID(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// IngestDocument handles POST /v1/documents/{id}/ingest. The file is the raw
// body or the "file" part of a multipart form. A failed run is still 200:
// the report carries status failed and the resume offset.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	data, err := s.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid upload: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "empty file")
		return
	}
	mimeType, supported := extract.Sniff(data)
	if !supported {
		writeError(w, http.StatusUnsupportedMediaType, codeUnsupportedFormat, "unsupported file type "+mimeType)
		return
	}

	rep, err := s.ingester.Ingest(r.Context(), tc, id, data)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.requestLogger(r).Info("Ingestion run finished",
		zap.Int64("document_id", id),
		zap.String("status", string(rep.Status)),
		zap.Int("chunks", rep.Chunks),
	)
	writeJSON(w, http.StatusOK, reportToResponse(rep, mimeType))
}

// DeleteVectors handles DELETE /v1/documents/{id}/vectors.
func (s *Server) DeleteVectors(w http.ResponseWriter, r *http.Request) {
	tc, ok := s.tenant(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	// Ownership check: another producer's document id is a 404.
	if _, err := s.docs.Get(r.Context(), tc.ProducerID(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	n, err := s.vectors.DeleteDocument(r.Context(), tc, id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteVectorsResponse{DocumentID: id, Deleted: n})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) tenant(w http.ResponseWriter, r *http.Request) (tenant.Context, bool) {
	tc, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "missing tenant")
	}
	return tc, ok
}

// decode reads a JSON body into dst and validates it. It writes the 400 itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if q, ok := dst.(*QueryRequest); ok {
		q.Question = strings.TrimSpace(q.Question)
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    codeValidationFailed,
			Message: "request validation failed",
			Fields:  validationErrors(err),
		})
		return false
	}
	return true
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return nil, err
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if logpkg.Has(r.Context()) {
		return logpkg.FromContext(r.Context())
	}
	return s.logger
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(gochi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "document id must be a positive integer")
		return 0, false
	}
	return id, true
}
