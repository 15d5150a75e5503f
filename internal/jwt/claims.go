package jwt

import (
	"errors"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Kind es el tipo de token. Cada tipo tiene clave y audiencia propias.
type Kind string

const (
	KindAccess        Kind = "access"
	KindRefresh       Kind = "refresh"
	KindImpersonation Kind = "impersonation"
)

// ClaimsVersion versiona el schema; tokens con otra versión no validan.
const ClaimsVersion = 1

const (
	AudienceAccess        = "platform-api"
	AudienceRefresh       = "platform-refresh"
	AudienceImpersonation = "tenant-impersonation"
)

func audience(k Kind) string {
	switch k {
	case KindAccess:
		return AudienceAccess
	case KindRefresh:
		return AudienceRefresh
	default:
		return AudienceImpersonation
	}
}

var ErrInvalidClaims = errors.New("jwt: invalid claims")

// Identity es lo que se firma para un principal de plataforma.
type Identity struct {
	PrincipalID string
	Email       string
	Roles       []string
	Permissions []string
}

// PlatformClaims: schema compartido por access y refresh.
type PlatformClaims struct {
	Version     int      `json:"ver"`
	Use         Kind     `json:"use"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	// SessionID (solo access) es el jti del refresh emitido en el mismo par.
	SessionID string `json:"sid,omitempty"`
	jwtv5.RegisteredClaims
}

func (c *PlatformClaims) check(kind Kind) error {
	if c.Version != ClaimsVersion || c.Use != kind || c.Subject == "" || c.ID == "" || c.Email == "" {
		return ErrInvalidClaims
	}
	if (kind == KindAccess) != (c.SessionID != "") {
		return ErrInvalidClaims
	}
	return nil
}

// ImpersonationClaims: token de soporte para operar dentro de un tenant.
type ImpersonationClaims struct {
	Version  int      `json:"ver"`
	Use      Kind     `json:"use"`
	TenantID string   `json:"tenant_id"`
	Scope    []string `json:"scope"`
	Reason   string   `json:"reason"`
	GrantID  string   `json:"grant_id"`
	jwtv5.RegisteredClaims
}

func (c *ImpersonationClaims) check() error {
	if c.Version != ClaimsVersion || c.Use != KindImpersonation || c.Subject == "" || c.ID == "" ||
		c.TenantID == "" || c.GrantID == "" || c.Reason == "" || len(c.Scope) == 0 {
		return ErrInvalidClaims
	}
	return nil
}
