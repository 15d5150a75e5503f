package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/jwt"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// Authenticator valida un access token (firma, audiencia y watermark de revocación).
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*jwt.PlatformClaims, error)
}

func bearer(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[7:])
}

// RequireAuth valida Authorization: Bearer y deja las claims en el contexto.
func RequireAuth(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r)
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="platform", error="invalid_token"`)
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}
			claims, err := a.Authenticate(r.Context(), raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="platform", error="invalid_token"`)
				errors.Respond(w, r, err)
				return
			}
			ctx := withClaims(r.Context(), claims)
			ctx = logger.WithFields(ctx, logger.PrincipalID(claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
