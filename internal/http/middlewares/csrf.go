package middlewares

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	tokens "github.com/dropDatabas3/cpauth/internal/security/token"
)

func isUnsafe(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// WithCSRF exige double-submit en métodos inseguros: el header debe repetir la cookie.
// Se aplica solo a rutas autenticadas por cookie (refresh, logout).
func WithCSRF(cookieName, headerName string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			hdr := strings.TrimSpace(r.Header.Get(headerName))
			ck, _ := r.Cookie(cookieName)
			if hdr == "" || ck == nil || ck.Value == "" || !tokens.Equal(hdr, ck.Value) {
				logger.From(r.Context()).Warn("csrf check failed", logger.Bool("header_present", hdr != ""), logger.Bool("cookie_present", ck != nil))
				errors.WriteError(w, errors.ErrCSRFMismatch)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
