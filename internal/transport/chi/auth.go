package chi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	logpkg "github.com/kailas-cloud/machinegpt/internal/logger"
)

type tenantKey struct{}

// TenantAuthMiddleware resolves the Bearer credential into a tenant.Context.
// Handlers read it back with tenantFrom and pass it to the core explicitly.
func TenantAuthMiddleware(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated,
					"authorization header must use Bearer scheme")
				return
			}

			tc, err := resolver.Resolve(auth[len(bearerPrefix):])
			if err != nil {
				writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid token")
				return
			}

			ctx := logpkg.With(r.Context(), zap.Int64("producer_id", tc.ProducerID()))
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, tenantKey{}, tc)))
		})
	}
}

func tenantFrom(r *http.Request) (tenant.Context, bool) {
	tc, ok := r.Context().Value(tenantKey{}).(tenant.Context)
	return tc, ok
}
