package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/cpauth/internal/http/errors"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/rate"
)

// RateLimitConfig limita por IP de cliente dentro de un scope (login, oauth, webhook).
type RateLimitConfig struct {
	Limiter rate.Limiter
	Scope   string
}

// WithRateLimit corta ráfagas por IP antes de llegar a los servicios. Un error del
// limiter deja pasar el request; el throttle de login sigue protegiendo credenciales.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.Scope + "|" + GetClientIP(r.Context())
			res, err := cfg.Limiter.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter error", logger.Component("rate"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				logger.From(r.Context()).Warn("rate limited", logger.String("scope", cfg.Scope))
				errors.WriteError(w, errors.ErrRateLimited.WithRetryAfter(res.RetryAfter))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
