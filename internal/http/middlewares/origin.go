package middlewares

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

func normalizeOrigin(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), "/"))
}

// requestOrigin usa Origin y, si falta, el scheme://host del Referer.
func requestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return normalizeOrigin(o)
	}
	if ref := r.Header.Get("Referer"); ref != "" {
		u, err := url.Parse(ref)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "null"
		}
		return normalizeOrigin(u.Scheme + "://" + u.Host)
	}
	return ""
}

// WithOriginCheck rechaza métodos inseguros cuyo Origin (o Referer) no esté permitido.
// Sin Origin ni Referer el request no viene de un navegador y se deja pasar; el
// double-submit CSRF sigue aplicando. Lista vacía desactiva el chequeo (solo dev).
func WithOriginCheck(allowed []string) Middleware {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if a = normalizeOrigin(a); a != "" {
			set[a] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		if len(set) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			origin := requestOrigin(r)
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := set[origin]; !ok {
				logger.From(r.Context()).Warn("origin denied", logger.String("origin", origin))
				errors.WriteError(w, errors.ErrOriginDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithCORS responde preflights y expone cabeceras solo a orígenes permitidos.
// No existe comodín: con credenciales, "*" equivaldría a permitir cualquier origen.
func WithCORS(allowed []string) Middleware {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if a = normalizeOrigin(a); a != "" && a != "*" {
			set[a] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			origin := r.Header.Get("Origin")
			_, ok := set[normalizeOrigin(origin)]
			if ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-CSRF-Token")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After, X-RateLimit-Remaining, WWW-Authenticate")
				h.Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
