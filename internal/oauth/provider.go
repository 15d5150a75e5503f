package oauth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ProviderConfig describe un IdP OIDC habilitado para operadores de plataforma.
type ProviderConfig struct {
	Name         string   `yaml:"name"`
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`

	// Endpoints explícitos. Si AuthURL, TokenURL y JWKSURL están presentes no se hace discovery.
	AuthURL  string `yaml:"auth_url"`
	TokenURL string `yaml:"token_url"`
	JWKSURL  string `yaml:"jwks_url"`

	// Algs permitidos para el id_token (default RS256, ES256).
	Algs []string `yaml:"algs"`

	// JIT: alta automática de principals con email verificado.
	AllowJIT       bool     `yaml:"allow_jit"`
	AllowedDomains []string `yaml:"allowed_domains"`
	DefaultRoles   []string `yaml:"default_roles"`
}

func (c *ProviderConfig) defaults() {
	if len(c.Scopes) == 0 {
		c.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if len(c.Algs) == 0 {
		c.Algs = []string{oidc.RS256, oidc.ES256}
	}
}

func (c ProviderConfig) validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name", ErrProviderConfig)
	case c.Issuer == "":
		return fmt.Errorf("%w: %s issuer", ErrProviderConfig, c.Name)
	case c.ClientID == "":
		return fmt.Errorf("%w: %s client_id", ErrProviderConfig, c.Name)
	case c.RedirectURL == "":
		return fmt.Errorf("%w: %s redirect_url", ErrProviderConfig, c.Name)
	}
	for _, a := range c.Algs {
		if strings.EqualFold(a, "none") || strings.HasPrefix(strings.ToUpper(a), "HS") {
			return fmt.Errorf("%w: %s alg %q not allowed", ErrProviderConfig, c.Name, a)
		}
	}
	return nil
}

// emailAllowed aplica AllowedDomains (vacío = cualquiera).
func (c ProviderConfig) emailAllowed(email string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range c.AllowedDomains {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return true
		}
	}
	return false
}

// Provider agrupa la config OAuth2 y el verificador de id_token de un IdP.
type Provider struct {
	cfg      ProviderConfig
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewProvider construye el provider. Usa discovery salvo que la config traiga endpoints explícitos.
// El verificador de go-oidc valida firma (JWKS), issuer, audience y alg; la expiración se valida
// aparte con tolerancia de skew.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	// El key set refresca el JWKS en cada rotación: no puede heredar el timeout del arranque.
	keysCtx := context.WithoutCancel(ctx)

	if cfg.AuthURL != "" && cfg.TokenURL != "" && cfg.JWKSURL != "" {
		ks := oidc.NewRemoteKeySet(keysCtx, cfg.JWKSURL)
		return newProvider(cfg, oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}, ks), nil
	}

	p, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oauth: discovery %s: %w", cfg.Name, err)
	}
	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := p.Claims(&meta); err != nil || meta.JWKSURL == "" {
		return nil, fmt.Errorf("oauth: discovery %s: missing jwks_uri", cfg.Name)
	}
	return newProvider(cfg, p.Endpoint(), oidc.NewRemoteKeySet(keysCtx, meta.JWKSURL)), nil
}

func newProvider(cfg ProviderConfig, ep oauth2.Endpoint, keys oidc.KeySet) *Provider {
	cfg.defaults()
	return &Provider{
		cfg: cfg,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       cfg.Scopes,
		},
		verifier: oidc.NewVerifier(cfg.Issuer, keys, &oidc.Config{
			ClientID:             cfg.ClientID,
			SupportedSigningAlgs: cfg.Algs,
			SkipExpiryCheck:      true,
		}),
	}
}

func (p *Provider) Name() string { return p.cfg.Name }

// Registry indexa providers por nombre.
type Registry struct {
	byName map[string]*Provider
}

func NewRegistry(providers ...*Provider) *Registry {
	r := &Registry{byName: make(map[string]*Provider, len(providers))}
	for _, p := range providers {
		r.byName[strings.ToLower(p.cfg.Name)] = p
	}
	return r
}

// LoadRegistry crea todos los providers configurados; falla en el primero inválido.
func LoadRegistry(ctx context.Context, cfgs []ProviderConfig, timeout time.Duration) (*Registry, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	out := make([]*Provider, 0, len(cfgs))
	for _, c := range cfgs {
		dctx, cancel := context.WithTimeout(ctx, timeout)
		p, err := NewProvider(dctx, c)
		cancel()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return NewRegistry(out...), nil
}

func (r *Registry) Get(name string) (*Provider, error) {
	if r == nil {
		return nil, ErrUnknownProvider
	}
	p, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names lista los providers habilitados (ordenados).
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byName))
	for _, p := range r.byName {
		out = append(out, p.cfg.Name)
	}
	sort.Strings(out)
	return out
}
