package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidSignature = errors.New("jwt: invalid signature")
	ErrExpired          = errors.New("jwt: token expired")
	ErrWrongAudience    = errors.New("jwt: wrong audience")
)

type Config struct {
	Issuer           string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ImpersonationTTL time.Duration
	Leeway           time.Duration
	Now              func() time.Time
}

// Issued es un token firmado y su metadata.
type Issued struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair es el par access + refresh de un login.
type Pair struct {
	Access  Issued
	Refresh Issued
}

// Grant describe una impersonación autorizada.
type Grant struct {
	PrincipalID string
	TenantID    string
	Scope       []string
	Reason      string
	GrantID     string
	TTL         time.Duration
}

type keyEntry struct {
	kind Kind
	pub  ed25519.PublicKey
}

// Service firma y verifica los tres tipos de token.
type Service struct {
	cfg   Config
	keys  Keys
	byKID map[string]keyEntry
}

func NewService(cfg Config, keys Keys) (*Service, error) {
	if err := keys.validate(); err != nil {
		return nil, err
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "cpauth"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.ImpersonationTTL <= 0 {
		cfg.ImpersonationTTL = 30 * time.Minute
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:  cfg,
		keys: keys,
		byKID: map[string]keyEntry{
			keys.Access.KID:        {kind: KindAccess, pub: keys.Access.Pub},
			keys.Refresh.KID:       {kind: KindRefresh, pub: keys.Refresh.Pub},
			keys.Impersonation.KID: {kind: KindImpersonation, pub: keys.Impersonation.Pub},
		},
	}, nil
}

// RefreshTTL expone la vida del refresh (cookie y registro de sesión la usan).
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

func (s *Service) keyFor(k Kind) *SigningKey {
	switch k {
	case KindAccess:
		return s.keys.Access
	case KindRefresh:
		return s.keys.Refresh
	default:
		return s.keys.Impersonation
	}
}

func (s *Service) sign(kind Kind, claims jwtv5.Claims) (string, error) {
	key := s.keyFor(kind)
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = key.KID
	tk.Header["typ"] = "JWT"
	return tk.SignedString(key.Priv)
}

func (s *Service) registered(sub string, kind Kind, now time.Time, ttl time.Duration) jwtv5.RegisteredClaims {
	return jwtv5.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   sub,
		Audience:  jwtv5.ClaimStrings{audience(kind)},
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (s *Service) issuePlatform(kind Kind, id Identity, sid string, now time.Time, ttl time.Duration) (Issued, error) {
	c := &PlatformClaims{
		Version:          ClaimsVersion,
		Use:              kind,
		Email:            id.Email,
		Roles:            nonNil(id.Roles),
		Permissions:      nonNil(id.Permissions),
		SessionID:        sid,
		RegisteredClaims: s.registered(id.PrincipalID, kind, now, ttl),
	}
	if err := c.check(kind); err != nil {
		return Issued{}, err
	}
	tok, err := s.sign(kind, c)
	if err != nil {
		return Issued{}, fmt.Errorf("jwt: sign %s: %w", kind, err)
	}
	return Issued{Token: tok, JTI: c.ID, IssuedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

// IssuePair emite access + refresh con jti distintos. El access lleva sid = jti del
// refresh, así revocar esa sesión corta también su access token.
func (s *Service) IssuePair(id Identity) (Pair, error) {
	now := s.cfg.Now().Truncate(time.Second)
	refresh, err := s.issuePlatform(KindRefresh, id, "", now, s.cfg.RefreshTTL)
	if err != nil {
		return Pair{}, err
	}
	access, err := s.issuePlatform(KindAccess, id, refresh.JTI, now, s.cfg.AccessTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// IssueImpersonation emite un token que solo valida contra VerifyImpersonation.
func (s *Service) IssueImpersonation(g Grant) (Issued, error) {
	ttl := g.TTL
	if ttl <= 0 || ttl > s.cfg.ImpersonationTTL {
		ttl = s.cfg.ImpersonationTTL
	}
	now := s.cfg.Now().Truncate(time.Second)
	c := &ImpersonationClaims{
		Version:          ClaimsVersion,
		Use:              KindImpersonation,
		TenantID:         g.TenantID,
		Scope:            g.Scope,
		Reason:           g.Reason,
		GrantID:          g.GrantID,
		RegisteredClaims: s.registered(g.PrincipalID, KindImpersonation, now, ttl),
	}
	if err := c.check(); err != nil {
		return Issued{}, err
	}
	tok, err := s.sign(KindImpersonation, c)
	if err != nil {
		return Issued{}, fmt.Errorf("jwt: sign impersonation: %w", err)
	}
	return Issued{Token: tok, JTI: c.ID, IssuedAt: now, ExpiresAt: now.Add(ttl)}, nil
}

// VerifyAccess valida un access token de plataforma.
func (s *Service) VerifyAccess(token string) (*PlatformClaims, error) {
	c := &PlatformClaims{}
	if err := s.parse(token, KindAccess, c); err != nil {
		return nil, err
	}
	if err := c.check(KindAccess); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyRefresh valida un refresh token.
func (s *Service) VerifyRefresh(token string) (*PlatformClaims, error) {
	c := &PlatformClaims{}
	if err := s.parse(token, KindRefresh, c); err != nil {
		return nil, err
	}
	if err := c.check(KindRefresh); err != nil {
		return nil, err
	}
	return c, nil
}

// VerifyImpersonation valida un token de impersonación (API de tenant).
func (s *Service) VerifyImpersonation(token string) (*ImpersonationClaims, error) {
	c := &ImpersonationClaims{}
	if err := s.parse(token, KindImpersonation, c); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) parse(token string, kind Kind, claims jwtv5.Claims) error {
	var signedBy Kind
	p := jwtv5.NewParser(
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodEdDSA.Alg()}),
		jwtv5.WithIssuer(s.cfg.Issuer),
		jwtv5.WithAudience(audience(kind)),
		jwtv5.WithLeeway(s.cfg.Leeway),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
		jwtv5.WithTimeFunc(s.cfg.Now),
	)
	_, err := p.ParseWithClaims(token, claims, func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		e, ok := s.byKID[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		signedBy = e.kind
		return e.pub, nil
	})
	if err != nil {
		return classify(err)
	}
	// Audiencia correcta pero firmado con la clave de otro tipo: no es un token legítimo.
	if signedBy != kind {
		return ErrInvalidSignature
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwtv5.ErrTokenInvalidAudience):
		return ErrWrongAudience
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

// AccessJWKS publica la clave pública de access tokens.
func (s *Service) AccessJWKS() []byte {
	return jwksJSON(s.keys.Access)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
