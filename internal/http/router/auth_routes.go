package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	mw "github.com/dropDatabas3/cpauth/internal/http/middlewares"
)

// registerAuthRoutes: login por password, sesión por cookie y operaciones con bearer.
func registerAuthRoutes(r chi.Router, d Deps) {
	c := d.Auth
	if c == nil {
		return
	}
	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(mw.Func(mw.WithNoStore())...)

		r.With(mw.Func(
			mw.WithOriginCheck(d.AllowedOrigins),
			mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.LoginLimiter, Scope: "login"}),
		)...).Post("/login", c.Login)

		// autenticadas por cookie: origin + double-submit CSRF
		r.Group(func(r chi.Router) {
			r.Use(mw.Func(
				mw.WithOriginCheck(d.AllowedOrigins),
				mw.WithCSRF(helpers.CookieCSRF, helpers.HeaderCSRF),
			)...)
			r.Post("/refresh", c.Refresh)
			r.Post("/logout", c.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.Func(mw.RequireAuth(d.Authn))...)
			r.Get("/me", c.Me)
			r.With(mw.Func(mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.LoginLimiter, Scope: "password"}))...).
				Post("/password", c.ChangePassword)
		})
	})
}

// registerMFARoutes: todas con bearer y límite por IP (los códigos son de 6 dígitos).
func registerMFARoutes(r chi.Router, d Deps) {
	c := d.MFA
	if c == nil {
		return
	}
	r.Route("/v1/mfa", func(r chi.Router) {
		r.Use(mw.Func(
			mw.WithNoStore(),
			mw.RequireAuth(d.Authn),
			mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.LoginLimiter, Scope: "mfa"}),
		)...)
		r.Post("/totp/setup", c.Setup)
		r.Post("/totp/enable", c.Enable)
		r.Post("/totp/disable", c.Disable)
		r.Post("/reauth", c.Reauth)
		r.Post("/recovery-codes", c.RegenerateRecoveryCodes)
	})
}
