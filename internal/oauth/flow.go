// Package oauth implementa el login de operadores vía OIDC: authorization code + PKCE + nonce,
// validación del id_token, alta JIT y el puente hacia el segundo factor.
//
// Estados: initiated → callback → exchanged → id_token verificado → completed | mfa_pending.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/auth"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/security/ipallow"
	tokens "github.com/dropDatabas3/cpauth/internal/security/token"
)

type Config struct {
	// FlowTTL vida de las cookies transitorias y del nonce server-side.
	FlowTTL time.Duration
	// PendingTTL vida de un challenge MFA pendiente.
	PendingTTL         time.Duration
	MaxPendingAttempts int
	// Skew tolerancia de reloj para exp/iat del id_token.
	Skew time.Duration
	// MaxAge antigüedad máxima del id_token (iat).
	MaxAge          time.Duration
	ExchangeTimeout time.Duration
	// RequireMFA exige segundo factor aunque el principal no lo tenga enrolado.
	RequireMFA bool
	Now        func() time.Time
}

func (c *Config) defaults() {
	if c.FlowTTL <= 0 {
		c.FlowTTL = 10 * time.Minute
	}
	if c.PendingTTL <= 0 {
		c.PendingTTL = 5 * time.Minute
	}
	if c.MaxPendingAttempts <= 0 {
		c.MaxPendingAttempts = 5
	}
	if c.Skew <= 0 {
		c.Skew = 2 * time.Minute
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 10 * time.Minute
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = 10 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type Deps struct {
	Providers *Registry
	Directory principal.Directory
	Auth      *auth.Service
	MFA       *mfa.Service
	// KV guarda nonces y challenges; en producción es el cliente con fallback a memoria.
	KV     cache.Client
	Audit  audit.Sink
	Events audit.EventSink
}

type Service struct {
	deps Deps
	cfg  Config
}

func NewService(deps Deps, cfg Config) *Service {
	cfg.defaults()
	return &Service{deps: deps, cfg: cfg}
}

func (s *Service) Config() Config { return s.cfg }

// Providers lista los proveedores configurados.
func (s *Service) Providers() []string { return s.deps.Providers.Names() }

func nonceKey(provider, nonce string) string {
	return "oauth:nonce:" + provider + ":" + tokens.SHA256Base64URL(nonce)
}

// Flow es el resultado de Start. State, Nonce y Verifier viajan en cookies transitorias.
type Flow struct {
	Provider  string
	AuthURL   string
	State     string
	Nonce     string
	Verifier  string
	ExpiresAt time.Time
}

// Start prepara el redirect al IdP y registra el nonce server-side (single-use).
func (s *Service) Start(ctx context.Context, providerName string) (*Flow, error) {
	p, err := s.deps.Providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	state, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	nonce, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	ok, err := s.deps.KV.SetNX(ctx, nonceKey(p.Name(), nonce), "issued", s.cfg.FlowTTL)
	if err != nil {
		return nil, fmt.Errorf("oauth: store nonce: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("oauth: nonce collision")
	}

	url := p.oauth2.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
		oauth2.AccessTypeOnline,
	)
	return &Flow{
		Provider:  p.Name(),
		AuthURL:   url,
		State:     state,
		Nonce:     nonce,
		Verifier:  verifier,
		ExpiresAt: s.cfg.Now().Add(s.cfg.FlowTTL),
	}, nil
}

// FlowCookies son los valores transitorios que el navegador devuelve en el callback.
type FlowCookies struct {
	State    string
	Nonce    string
	Verifier string
}

type CallbackInput struct {
	Provider string
	State    string
	Code     string
	Error    string
	Cookies  FlowCookies
	IP       string
}

// CallbackResult trae tokens emitidos o un challenge MFA pendiente (nunca ambos).
type CallbackResult struct {
	PrincipalID string
	Tokens      *auth.Tokens
	Pending     *Challenge
}

// Callback aplica los gates en orden estricto. Las cookies transitorias ya fueron
// limpiadas por el caller antes de invocar esto, sea cual sea el resultado.
func (s *Service) Callback(ctx context.Context, in CallbackInput) (res *CallbackResult, err error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("oauth.callback"), logger.Provider(in.Provider))

	p, err := s.deps.Providers.Get(in.Provider)
	if err != nil {
		return nil, err
	}
	defer func() { metrics.OAuthCallbacks.WithLabelValues(p.Name(), outcomeOf(res, err)).Inc() }()

	// 1. state cookie == state query.
	if in.State == "" || in.Cookies.State == "" || !tokens.Equal(in.State, in.Cookies.State) {
		log.Warn("state mismatch")
		return nil, ErrInvalidState
	}
	if in.Error != "" {
		log.Info("provider denied authorization", logger.String("error", in.Error))
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, in.Error)
	}
	// 2. nonce cookie.
	if in.Cookies.Nonce == "" {
		return nil, ErrInvalidNonce
	}
	// 3. verifier PKCE.
	if in.Cookies.Verifier == "" || in.Code == "" {
		return nil, ErrInvalidState
	}

	// 4. exchange + verificación del id_token.
	claims, idt, err := s.exchangeAndVerify(ctx, p, in.Code, in.Cookies.Verifier)
	if err != nil {
		log.Warn("id_token rejected", logger.Err(err))
		return nil, err
	}

	// 5. nonce del token == nonce de la cookie.
	if idt.Nonce == "" || !tokens.Equal(idt.Nonce, in.Cookies.Nonce) {
		log.Warn("nonce mismatch")
		return nil, ErrInvalidNonce
	}

	// 6. recién ahora se consume el nonce server-side.
	n, err := s.deps.KV.Delete(ctx, nonceKey(p.Name(), in.Cookies.Nonce))
	if err != nil {
		return nil, fmt.Errorf("oauth: consume nonce: %w", err)
	}
	if n != 1 {
		s.nonceReplay(ctx, p.Name(), claims.Subject, in.IP)
		return nil, ErrInvalidNonce
	}

	// 7. resolver o provisionar.
	pr, err := s.resolve(ctx, p, claims)
	if err != nil {
		return nil, err
	}
	if pr.Disabled() {
		s.deps.Audit.Log(ctx, audit.Event{Type: audit.LoginFailed, PrincipalID: pr.ID, IP: in.IP, Reason: "disabled", Metadata: map[string]any{"provider": p.Name()}})
		return nil, auth.ErrAccountDisabled
	}

	// 8. allowlist de IP.
	if !ipallow.Permits(pr.IPAllowlist, in.IP) {
		s.deps.Audit.Log(ctx, audit.Event{Type: audit.IPDenied, PrincipalID: pr.ID, IP: in.IP, Metadata: map[string]any{"provider": p.Name()}})
		return nil, auth.ErrIPDenied
	}

	// 9. puente MFA.
	if claims.mfaSatisfied() || (!pr.MFAEnabled && !s.cfg.RequireMFA) {
		tok, err := s.deps.Auth.IssueSession(ctx, pr)
		if err != nil {
			return nil, err
		}
		s.deps.Audit.Log(ctx, audit.Event{Type: audit.OAuthLogin, PrincipalID: pr.ID, IP: in.IP, Metadata: map[string]any{"provider": p.Name(), "idp_mfa": claims.mfaSatisfied()}})
		log.Info("oauth login ok", logger.PrincipalID(pr.ID))
		return &CallbackResult{PrincipalID: pr.ID, Tokens: tok}, nil
	}
	if !pr.MFAEnabled {
		return nil, auth.ErrMFARequired
	}

	ch, err := s.createChallenge(ctx, p.Name(), pr.ID)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.Log(ctx, audit.Event{Type: audit.OAuthMFAPending, PrincipalID: pr.ID, IP: in.IP, Metadata: map[string]any{"provider": p.Name()}})
	return &CallbackResult{PrincipalID: pr.ID, Pending: ch}, nil
}

func (s *Service) exchangeAndVerify(ctx context.Context, p *Provider, code, verifier string) (idClaims, *oidc.IDToken, error) {
	var c idClaims
	xctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	tok, err := p.oauth2.Exchange(xctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return c, nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return c, nil, fmt.Errorf("%w: missing id_token", ErrInvalidIDToken)
	}
	idt, err := p.verifier.Verify(xctx, raw)
	if err != nil {
		return c, nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if err := s.checkTimes(idt); err != nil {
		return c, nil, err
	}
	if err := idt.Claims(&c); err != nil {
		return c, nil, fmt.Errorf("%w: claims: %v", ErrInvalidIDToken, err)
	}
	if c.Subject == "" {
		return c, nil, fmt.Errorf("%w: missing sub", ErrInvalidIDToken)
	}
	return c, idt, nil
}

// checkTimes valida exp / iat con tolerancia y la antigüedad máxima.
func (s *Service) checkTimes(idt *oidc.IDToken) error {
	now := s.cfg.Now()
	switch {
	case idt.Expiry.IsZero() || now.After(idt.Expiry.Add(s.cfg.Skew)):
		return fmt.Errorf("%w: expired", ErrInvalidIDToken)
	case idt.IssuedAt.IsZero():
		return fmt.Errorf("%w: missing iat", ErrInvalidIDToken)
	case idt.IssuedAt.After(now.Add(s.cfg.Skew)):
		return fmt.Errorf("%w: iat in the future", ErrInvalidIDToken)
	case now.Sub(idt.IssuedAt) > s.cfg.MaxAge+s.cfg.Skew:
		return fmt.Errorf("%w: too old", ErrInvalidIDToken)
	}
	return nil
}

func (s *Service) nonceReplay(ctx context.Context, provider, sub, ip string) {
	logger.From(ctx).Warn("oauth nonce replay", logger.Component("oauth.callback"), logger.Provider(provider), logger.ClientIP(ip))
	meta := map[string]any{"provider": provider, "sub": sub}
	s.deps.Audit.Log(ctx, audit.Event{Type: audit.OAuthNonceReplay, IP: ip, Metadata: meta})
	if s.deps.Events != nil {
		s.deps.Events.Publish(ctx, audit.SecurityEvent{Kind: audit.OAuthNonceReplay, Identity: principal.SSOSubject(provider, sub), IP: ip, Detail: meta})
	}
}

// resolve busca por subject SSO, luego vincula por email verificado y, si el provider lo
// permite, provisiona. Cualquier otro caso es ErrProvisioningDenied.
func (s *Service) resolve(ctx context.Context, p *Provider, c idClaims) (*principal.Principal, error) {
	dir := s.deps.Directory
	subject := principal.SSOSubject(p.Name(), c.Subject)

	pr, err := dir.BySSOSubject(ctx, subject)
	if err == nil {
		return pr, nil
	}
	if !errors.Is(err, principal.ErrNotFound) {
		return nil, err
	}

	email := principal.NormalizeEmail(c.Email)
	if email == "" || !c.emailVerified() || !p.cfg.emailAllowed(email) {
		return nil, ErrProvisioningDenied
	}

	pr, err = dir.ByEmail(ctx, email)
	switch {
	case err == nil:
		if pr.SSOSubject != nil && *pr.SSOSubject != subject {
			return nil, ErrProvisioningDenied
		}
		if err := dir.BindSSOSubject(ctx, pr.ID, subject); err != nil {
			if errors.Is(err, principal.ErrConflict) {
				return nil, ErrProvisioningDenied
			}
			return nil, err
		}
		pr.SSOSubject = &subject
		return pr, nil
	case !errors.Is(err, principal.ErrNotFound):
		return nil, err
	}

	if !p.cfg.AllowJIT {
		return nil, ErrProvisioningDenied
	}
	pr, err = dir.Create(ctx, principal.CreateInput{Email: email, Roles: p.cfg.DefaultRoles, SSOSubject: &subject})
	if errors.Is(err, principal.ErrConflict) {
		// otro callback concurrente lo creó
		return dir.BySSOSubject(ctx, subject)
	}
	if err != nil {
		return nil, err
	}
	s.deps.Audit.Log(ctx, audit.Event{Type: audit.OAuthProvisioned, PrincipalID: pr.ID, Metadata: map[string]any{"provider": p.Name()}})
	return pr, nil
}

func outcomeOf(res *CallbackResult, err error) string {
	switch {
	case err == nil && res != nil && res.Pending != nil:
		return "mfa_pending"
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidNonce):
		return "invalid_nonce"
	case errors.Is(err, ErrInvalidIDToken):
		return "invalid_id_token"
	case errors.Is(err, ErrExchange):
		return "exchange_failed"
	case errors.Is(err, ErrProvisioningDenied):
		return "provisioning_denied"
	case errors.Is(err, auth.ErrIPDenied):
		return "ip_denied"
	default:
		return "error"
	}
}
