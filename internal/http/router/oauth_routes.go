package router

import (
	"github.com/go-chi/chi/v5"

	mw "github.com/dropDatabas3/cpauth/internal/http/middlewares"
)

func registerOAuthRoutes(r chi.Router, d Deps) {
	c := d.OAuth
	if c == nil {
		return
	}
	limit := mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.OAuthLimiter, Scope: "oauth"})
	r.Route("/v1/oauth", func(r chi.Router) {
		r.Use(mw.Func(mw.WithNoStore())...)
		r.Get("/providers", c.Providers)
		r.With(mw.Func(limit)...).Get("/{provider}/start", c.Start)
		r.With(mw.Func(limit)...).Get("/{provider}/callback", c.Callback)
		// el CSRF del challenge pendiente lo valida el servicio contra su hash
		r.With(mw.Func(limit, mw.WithOriginCheck(d.AllowedOrigins))...).Post("/complete", c.Complete)
	})
}

func registerWebhookRoutes(r chi.Router, d Deps) {
	c := d.Webhook
	if c == nil {
		return
	}
	r.With(mw.Func(
		mw.WithNoStore(),
		mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.WebhookLimiter, Scope: "webhook"}),
	)...).Post("/v1/webhooks/{provider}", c.Receive)
}
