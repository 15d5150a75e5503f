// Package router arma las rutas HTTP sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/health"
	mfactrl "github.com/dropDatabas3/cpauth/internal/http/controllers/mfa"
	oauthctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/oauth"
	webhookctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/webhook"
	httperrors "github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	mw "github.com/dropDatabas3/cpauth/internal/http/middlewares"
	"github.com/dropDatabas3/cpauth/internal/rate"
)

// Deps contiene controllers y políticas transversales. Un controller nil no registra rutas.
type Deps struct {
	Auth    *authctrl.Controller
	MFA     *mfactrl.Controller
	OAuth   *oauthctrl.Controller
	Webhook *webhookctrl.Controller
	Health  *healthctrl.Controller

	Authn          mw.Authenticator
	IPResolver     helpers.IPResolver
	AllowedOrigins []string

	// Limiters por IP; nil desactiva el límite del scope.
	LoginLimiter   rate.Limiter
	OAuthLimiter   rate.Limiter
	WebhookLimiter rate.Limiter
}

// New devuelve el handler raíz.
// Orden global: Recover → RequestID → ClientIP → Metrics → SecurityHeaders → CORS; la API agrega Logging.
// CORS va antes del ruteo para que los preflight no terminen en 405.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.Func(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithClientIP(d.IPResolver),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
		mw.WithCORS(d.AllowedOrigins),
	)...)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// health sin logging: son muy frecuentes
	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Get("/readyz", d.Health.Readyz)
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.Func(mw.WithLogging())...)
		registerAuthRoutes(r, d)
		registerMFARoutes(r, d)
		registerOAuthRoutes(r, d)
		registerWebhookRoutes(r, d)
	})
	return r
}
