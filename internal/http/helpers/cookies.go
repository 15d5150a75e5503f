package helpers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/cpauth/internal/auth"
	"github.com/dropDatabas3/cpauth/internal/oauth"
	tokens "github.com/dropDatabas3/cpauth/internal/security/token"
)

// Nombres de cookies.
const (
	CookieRefresh      = "cp_refresh"
	CookieCSRF         = "cp_csrf"
	CookieOAuthState   = "cp_oauth_state"
	CookieOAuthNonce   = "cp_oauth_nonce"
	CookieOAuthVerify  = "cp_oauth_verifier"
	CookieMFAChallenge = "cp_mfa_challenge"
	CookieMFACSRF      = "cp_mfa_csrf"

	// HeaderCSRF es donde el cliente repite el valor de la cookie CSRF.
	HeaderCSRF = "X-CSRF-Token"
)

// CookieConfig controla atributos comunes. Secure es obligatorio en prod.
type CookieConfig struct {
	Domain      string
	Secure      bool
	RefreshPath string // default /v1/auth
	OAuthPath   string // default /v1/oauth
}

// Cookies emite y lee las cookies del flujo de login.
//
//	refresh: httpOnly, Strict, solo bajo RefreshPath
//	csrf:    legible por JS, Strict; el cliente lo repite en X-CSRF-Token
//	oauth:   state/nonce/verifier httpOnly, Lax (vuelven en el redirect del IdP), TTL corto
//	pending: id del challenge httpOnly + csrf legible, ambos Strict
type Cookies struct {
	cfg CookieConfig
	now func() time.Time
}

func NewCookies(cfg CookieConfig) *Cookies {
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = "/v1/auth"
	}
	if cfg.OAuthPath == "" {
		cfg.OAuthPath = "/v1/oauth"
	}
	return &Cookies{cfg: cfg, now: time.Now}
}

func (c *Cookies) build(name, value, path string, httpOnly bool, sameSite http.SameSite, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: httpOnly,
		Secure:   c.cfg.Secure,
		SameSite: sameSite,
	}
	if strings.TrimSpace(c.cfg.Domain) != "" {
		ck.Domain = c.cfg.Domain
	}
	if !expires.IsZero() {
		ck.Expires = expires.UTC()
		ck.MaxAge = int(expires.Sub(c.now()).Seconds())
		if ck.MaxAge <= 0 {
			ck.MaxAge = -1
		}
	}
	return ck
}

func (c *Cookies) clear(w http.ResponseWriter, name, path string, httpOnly bool, sameSite http.SameSite) {
	ck := c.build(name, "", path, httpOnly, sameSite, time.Time{})
	ck.Expires = time.Unix(0, 0).UTC()
	ck.MaxAge = -1
	http.SetCookie(w, ck)
}

func read(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}

// SetSession deja el refresh token y un CSRF nuevo. Devuelve el valor CSRF.
func (c *Cookies) SetSession(w http.ResponseWriter, t *auth.Tokens) (string, error) {
	csrf, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, c.build(CookieRefresh, t.RefreshToken, c.cfg.RefreshPath, true, http.SameSiteStrictMode, t.RefreshExpiresAt))
	http.SetCookie(w, c.build(CookieCSRF, csrf, "/", false, http.SameSiteStrictMode, t.RefreshExpiresAt))
	return csrf, nil
}

func (c *Cookies) ClearSession(w http.ResponseWriter) {
	c.clear(w, CookieRefresh, c.cfg.RefreshPath, true, http.SameSiteStrictMode)
	c.clear(w, CookieCSRF, "/", false, http.SameSiteStrictMode)
}

func (c *Cookies) RefreshToken(r *http.Request) string { return read(r, CookieRefresh) }

// CSRF devuelve la cookie CSRF de sesión.
func (c *Cookies) CSRF(r *http.Request) string { return read(r, CookieCSRF) }

// SetFlow guarda los transitorios del login externo hasta que expire el flujo.
func (c *Cookies) SetFlow(w http.ResponseWriter, f *oauth.Flow) {
	path := c.cfg.OAuthPath
	http.SetCookie(w, c.build(CookieOAuthState, f.State, path, true, http.SameSiteLaxMode, f.ExpiresAt))
	http.SetCookie(w, c.build(CookieOAuthNonce, f.Nonce, path, true, http.SameSiteLaxMode, f.ExpiresAt))
	http.SetCookie(w, c.build(CookieOAuthVerify, f.Verifier, path, true, http.SameSiteLaxMode, f.ExpiresAt))
}

func (c *Cookies) ReadFlow(r *http.Request) oauth.FlowCookies {
	return oauth.FlowCookies{
		State:    read(r, CookieOAuthState),
		Nonce:    read(r, CookieOAuthNonce),
		Verifier: read(r, CookieOAuthVerify),
	}
}

func (c *Cookies) ClearFlow(w http.ResponseWriter) {
	path := c.cfg.OAuthPath
	c.clear(w, CookieOAuthState, path, true, http.SameSiteLaxMode)
	c.clear(w, CookieOAuthNonce, path, true, http.SameSiteLaxMode)
	c.clear(w, CookieOAuthVerify, path, true, http.SameSiteLaxMode)
}

// SetPending entrega el challenge MFA pendiente de un login externo.
func (c *Cookies) SetPending(w http.ResponseWriter, ch *oauth.Challenge) {
	http.SetCookie(w, c.build(CookieMFAChallenge, ch.ID, c.cfg.OAuthPath, true, http.SameSiteStrictMode, ch.ExpiresAt))
	http.SetCookie(w, c.build(CookieMFACSRF, ch.CSRF, "/", false, http.SameSiteStrictMode, ch.ExpiresAt))
}

func (c *Cookies) ReadPending(r *http.Request) (id, csrf string) {
	return read(r, CookieMFAChallenge), read(r, CookieMFACSRF)
}

func (c *Cookies) ClearPending(w http.ResponseWriter) {
	c.clear(w, CookieMFAChallenge, c.cfg.OAuthPath, true, http.SameSiteStrictMode)
	c.clear(w, CookieMFACSRF, "/", false, http.SameSiteStrictMode)
}
