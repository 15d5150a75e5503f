package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
)

// WithClientIP resuelve la IP del cliente una sola vez por request.
func WithClientIP(res helpers.IPResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := audit.WithClientIP(r.Context(), res.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
