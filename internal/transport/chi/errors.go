package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest        = "bad_request"
	codeValidationFailed  = "validation_failed"
	codeUnauthenticated   = "unauthenticated"
	codeForbidden         = "machine_forbidden"
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codePayloadTooLarge   = "payload_too_large"
	codeUnsupportedFormat = "unsupported_format"
	codeRateLimited       = "rate_limited"
	codeProviderError     = "provider_error"
	codeVectorStore       = "vector_store_unavailable"
	codeInternal          = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthenticated),
	sentinelHandler(domain.ErrTenantContextMissing, http.StatusUnauthorized, codeUnauthenticated),
	sentinelHandler(domain.ErrMachineForbidden, http.StatusForbidden, codeForbidden),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
	sentinelHandler(domain.ErrLeaseHeld, http.StatusConflict, codeConflict),
	sentinelHandler(domain.ErrInvalidTransition, http.StatusConflict, codeConflict),
	sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, codeUnsupportedFormat),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
	sentinelHandler(domain.ErrEmbeddingCountMismatch, http.StatusBadGateway, codeProviderError),
	sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, codeProviderError),
	sentinelHandler(domain.ErrVectorStore, http.StatusServiceUnavailable, codeVectorStore),
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The client sees only the sentinel text, never the wrapped details.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r)
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
