package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/auth"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/config"
	"github.com/dropDatabas3/cpauth/internal/email"
	authctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/health"
	mfactrl "github.com/dropDatabas3/cpauth/internal/http/controllers/mfa"
	oauthctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/oauth"
	webhookctrl "github.com/dropDatabas3/cpauth/internal/http/controllers/webhook"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	"github.com/dropDatabas3/cpauth/internal/http/router"
	"github.com/dropDatabas3/cpauth/internal/jwt"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/oauth"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/rate"
	"github.com/dropDatabas3/cpauth/internal/security/password"
	"github.com/dropDatabas3/cpauth/internal/security/secretbox"
	"github.com/dropDatabas3/cpauth/internal/session"
	"github.com/dropDatabas3/cpauth/internal/store/pg"
	"github.com/dropDatabas3/cpauth/internal/webhook"
	"github.com/dropDatabas3/cpauth/migrations"
)

// Deps expone lo que bootstrap y tests necesitan además del handler.
type Deps struct {
	Directory principal.Directory
	// Store es el KV primario (Redis en prod); Shared es el cliente con fallback a memoria.
	Store  cache.Client
	Shared cache.Client
	Box    *secretbox.Box
	Tokens *jwt.Service
	Auth   *auth.Service
	MFA    *mfa.Service
	OAuth  *oauth.Service
}

// BuildHandler arma el handler HTTP con todas las dependencias.
func BuildHandler(ctx context.Context, cfg *config.Config) (http.Handler, func() error, error) {
	h, cleanup, _, err := BuildHandlerWithDeps(ctx, cfg)
	return h, cleanup, err
}

// BuildHandlerWithDeps es BuildHandler devolviendo también los servicios construidos.
func BuildHandlerWithDeps(ctx context.Context, cfg *config.Config) (http.Handler, func() error, *Deps, error) {
	log := logger.L().With(logger.Layer("server"), logger.Op("BuildHandler"))
	prod := cfg.IsProd()

	var closers []func() error
	cleanup := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	fail := func(err error) (http.Handler, func() error, *Deps, error) {
		_ = cleanup()
		return nil, nil, nil, err
	}

	// 1. KV: primario + fallback a memoria para lo que tolera ser local al proceso.
	primary := cache.New(cache.Config{
		Driver:    cfg.Cache.Kind,
		Addr:      cfg.Cache.Redis.Addr,
		Password:  cfg.Cache.Redis.Password,
		DB:        cfg.Cache.Redis.DB,
		Prefix:    cfg.Cache.Redis.Prefix,
		OpTimeout: cfg.Cache.Redis.Timeout,
	})
	closers = append(closers, primary.Close)
	shared := primary
	if cfg.Cache.Kind == "redis" {
		shared = cache.NewFallback("shared", primary, cache.NewMemory(cfg.Cache.Redis.Prefix))
		closers = append(closers, shared.Close)
	}
	checks := map[string]healthctrl.Pinger{"cache": primary}

	// 2. Directorio de principals
	var dir principal.Directory
	switch cfg.Database.Driver {
	case "postgres":
		st, err := pg.New(ctx, pg.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return fail(fmt.Errorf("init postgres: %w", err))
		}
		closers = append(closers, func() error { st.Close(); return nil })
		if cfg.Database.Migrate {
			applied, err := st.Migrate(ctx, migrations.PostgresFS, migrations.PostgresDir)
			if err != nil {
				return fail(fmt.Errorf("migrate: %w", err))
			}
			log.Info("migrations applied", logger.Count(len(applied)))
		}
		dir = st
		checks["database"] = st
	default:
		if prod {
			log.Warn("in-memory principal directory in prod")
		}
		dir = principal.NewMemory()
	}

	// 3. Material criptográfico
	box, ephemeral, err := secretbox.FromConfig(cfg.SecretBox.Key, cfg.SecretBox.PreviousKey, prod)
	if err != nil {
		return fail(err)
	}
	if ephemeral {
		log.Warn("secretbox key not configured, using ephemeral key")
	}
	keys, ephemeral, err := jwt.KeysFromSeeds(cfg.JWT.AccessSeed, cfg.JWT.RefreshSeed, cfg.JWT.ImpersonationSeed, prod)
	if err != nil {
		return fail(err)
	}
	if ephemeral {
		log.Warn("jwt signing seeds not configured, using ephemeral keys")
	}
	tokens, err := jwt.NewService(jwt.Config{
		Issuer:           cfg.JWT.Issuer,
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		ImpersonationTTL: cfg.JWT.ImpersonationTTL,
		Leeway:           cfg.JWT.Leeway,
	}, keys)
	if err != nil {
		return fail(err)
	}

	// 4. Sinks
	sink := audit.NewLogSink(logger.L())
	notify, err := buildNotifier(cfg)
	if err != nil {
		return fail(err)
	}

	// 5. Servicios de dominio
	sessions := session.NewStore(primary, session.Config{WatermarkTTL: cfg.JWT.RefreshTTL}, sink, sink)
	throttle := rate.NewThrottle(primary, rate.ThrottleConfig{
		Scope:             "platform",
		Window:            cfg.Throttle.Window,
		CaptchaThreshold:  cfg.Throttle.CaptchaThreshold,
		BackoffThreshold:  cfg.Throttle.BackoffThreshold,
		BaseDelay:         cfg.Throttle.BaseDelay,
		MaxDelay:          cfg.Throttle.MaxDelay,
		SoftLockThreshold: cfg.Throttle.SoftLockThreshold,
		SoftLockTTL:       cfg.Throttle.SoftLockTTL,
	}, sink)
	mfaSvc := mfa.NewService(dir, box, shared, mfa.Config{
		Issuer:        cfg.MFA.Issuer,
		RecoveryCount: cfg.MFA.RecoveryCount,
		FreshnessTTL:  cfg.MFA.FreshnessTTL,
		Skew:          cfg.MFA.Skew,
	}, sink, notify)

	policy := cfg.PasswordPolicy()

	authSvc := auth.NewService(auth.Deps{
		Directory: dir,
		Throttle:  throttle,
		Tokens:    tokens,
		Sessions:  sessions,
		MFA:       mfaSvc,
		Audit:     sink,
		Notify:    notify,
		Policy:    policy,
		Hashing:   password.Default,
	})

	// 6. Login externo. Un discovery fallido aborta el arranque.
	registry := oauth.NewRegistry()
	if len(cfg.OAuth.Providers) > 0 {
		registry, err = oauth.LoadRegistry(ctx, cfg.OAuth.Providers, cfg.OAuth.DiscoveryTimeout)
		if err != nil {
			return fail(fmt.Errorf("oauth providers: %w", err))
		}
	}
	oauthSvc := oauth.NewService(oauth.Deps{
		Providers: registry,
		Directory: dir,
		Auth:      authSvc,
		MFA:       mfaSvc,
		KV:        shared,
		Audit:     sink,
		Events:    sink,
	}, oauth.Config{
		FlowTTL:         cfg.OAuth.FlowTTL,
		PendingTTL:      cfg.OAuth.PendingTTL,
		ExchangeTimeout: cfg.OAuth.ExchangeTimeout,
		RequireMFA:      cfg.OAuth.RequireMFA,
	})

	// 7. Webhooks: solo se registran los proveedores con credenciales.
	verifiers, err := buildVerifiers(cfg)
	if err != nil {
		return fail(err)
	}
	ingestor := webhook.NewIngestor(primary,
		webhook.NewStaticRouter(cfg.Webhooks.Routes, cfg.Webhooks.KnownTenants),
		webhook.AcceptProcessor{}, sink,
		webhook.Config{Tolerance: cfg.Webhooks.Tolerance, RecordTTL: cfg.Webhooks.RecordTTL},
		verifiers...)

	// 8. HTTP
	cookies := helpers.NewCookies(helpers.CookieConfig{Domain: cfg.Cookies.Domain, Secure: cfg.Cookies.Secure})
	d := router.Deps{
		Auth:  authctrl.NewController(authSvc, cookies),
		MFA:   mfactrl.NewController(mfaSvc),
		OAuth: oauthctrl.NewController(oauthSvc, cookies, oauthctrl.Redirects{Success: cfg.OAuth.Redirects.Success, MFA: cfg.OAuth.Redirects.MFA}),
		Health: healthctrl.NewController(cfg.App.Version, 2*time.Second, checks),

		Authn:          authSvc,
		IPResolver:     helpers.IPResolver{Trusted: cfg.Server.TrustedProxies},
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if len(verifiers) > 0 {
		d.Webhook = webhookctrl.NewController(ingestor)
	}

	size := cfg.Rate.TableSize
	if l, err := newLimiter(cfg.Rate.Login, size); err != nil {
		return fail(err)
	} else if l != nil {
		d.LoginLimiter = l
	}
	if l, err := newLimiter(cfg.Rate.OAuth, size); err != nil {
		return fail(err)
	} else if l != nil {
		d.OAuthLimiter = l
	}
	if l, err := newLimiter(cfg.Rate.Webhook, size); err != nil {
		return fail(err)
	} else if l != nil {
		d.WebhookLimiter = l
	}

	log.Info("handler ready",
		logger.String("cache", cfg.Cache.Kind),
		logger.String("database", cfg.Database.Driver),
		logger.Any("oauth_providers", registry.Names()),
		logger.Any("webhook_providers", ingestor.Providers()),
	)

	return router.New(d), cleanup, &Deps{
		Directory: dir,
		Store:     primary,
		Shared:    shared,
		Box:       box,
		Tokens:    tokens,
		Auth:      authSvc,
		MFA:       mfaSvc,
		OAuth:     oauthSvc,
	}, nil
}

// newLimiter devuelve nil si el límite está desactivado (RPS <= 0).
func newLimiter(l config.RateLimit, size int) (*rate.KeyedLimiter, error) {
	if l.RPS <= 0 {
		return nil, nil
	}
	return rate.NewKeyedLimiter(l.RPS, l.Burst, size)
}

func buildNotifier(cfg *config.Config) (email.Notifier, error) {
	var sender email.Sender = email.LogSender{}
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	}
	return email.NewAsyncNotifier(sender, cfg.App.Name, 10*time.Second)
}

func buildVerifiers(cfg *config.Config) ([]webhook.Verifier, error) {
	var out []webhook.Verifier
	if strings.TrimSpace(cfg.Webhooks.Razorpay.Secret) != "" {
		v, err := webhook.NewRazorpayVerifier(cfg.Webhooks.Razorpay.Secret)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	pp := cfg.Webhooks.PayPal
	if strings.TrimSpace(pp.ClientID) != "" {
		v, err := webhook.NewPayPalVerifier(webhook.PayPalConfig{
			BaseURL:      pp.BaseURL,
			ClientID:     pp.ClientID,
			ClientSecret: pp.ClientSecret,
			WebhookID:    pp.WebhookID,
			Timeout:      pp.Timeout,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
