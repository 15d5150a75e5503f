// Package auth orquesta login, refresh, logout y cambio de password de operadores de plataforma.
//
// Orden del login: soft lock → backoff pendiente → captcha → credenciales → estado de cuenta →
// MFA → allowlist de IP → emisión (TokenService + SessionStore).
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/email"
	"github.com/dropDatabas3/cpauth/internal/jwt"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/rate"
	"github.com/dropDatabas3/cpauth/internal/security/password"
	"github.com/dropDatabas3/cpauth/internal/session"
)

// CaptchaVerifier valida el token del widget de captcha.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, ip string) bool
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Directory principal.Directory
	Throttle  *rate.Throttle
	Tokens    *jwt.Service
	Sessions  *session.Store
	MFA       *mfa.Service
	Captcha   CaptchaVerifier // nil = sin gate de captcha
	Audit     audit.Sink
	Notify    email.Notifier
	Policy    password.Policy
	Hashing   password.Params
	Now       func() time.Time
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Notify == nil {
		deps.Notify = email.Discard{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Policy.MinLength == 0 {
		deps.Policy = password.DefaultPolicy
	}
	if deps.Hashing.Memory == 0 {
		deps.Hashing = password.Default
	}
	return &Service{deps: deps}
}

// Tokens es el resultado de una emisión de sesión.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	PrincipalID      string
}

func identityOf(p *principal.Principal) jwt.Identity {
	return jwt.Identity{
		PrincipalID: p.ID,
		Email:       p.Email,
		Roles:       p.Roles,
		Permissions: p.Permissions,
	}
}

// IssueSession firma access + refresh y registra el jti del refresh como sesión activa.
// Es el paso final compartido por login con password y OAuth.
func (s *Service) IssueSession(ctx context.Context, p *principal.Principal) (*Tokens, error) {
	pair, err := s.deps.Tokens.IssuePair(identityOf(p))
	if err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.Create(ctx, p.ID, pair.Refresh.JTI, s.deps.Tokens.RefreshTTL()); err != nil {
		return nil, err
	}
	return tokensOf(p.ID, pair), nil
}

func tokensOf(principalID string, pair jwt.Pair) *Tokens {
	return &Tokens{
		AccessToken:      pair.Access.Token,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshToken:     pair.Refresh.Token,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
		PrincipalID:      principalID,
	}
}

// Authenticate valida un access token contra su sesión (sid) y el watermark de revocación.
// El sid cubre lo que el watermark no distingue dentro del mismo segundo.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*jwt.PlatformClaims, error) {
	claims, err := s.deps.Tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	st, err := s.deps.Sessions.Status(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if st != session.StateActive && st != session.StateRotated {
		return nil, ErrSessionRevoked
	}
	mark, err := s.deps.Sessions.RevokedSince(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !mark.IsZero() && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(mark) {
		return nil, ErrSessionRevoked
	}
	return claims, nil
}

func (s *Service) now() time.Time { return s.deps.Now().UTC() }

func isNotFound(err error) bool { return errors.Is(err, principal.ErrNotFound) }
