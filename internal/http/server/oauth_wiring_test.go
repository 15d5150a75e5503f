package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	dto "github.com/dropDatabas3/cpauth/internal/http/dto/auth"
	oauthdto "github.com/dropDatabas3/cpauth/internal/http/dto/oauth"
	"github.com/dropDatabas3/cpauth/internal/http/helpers"
	"github.com/dropDatabas3/cpauth/internal/security/totp"
)

const idpIssuer = "https://idp.example.com"

// idp sirve /token y /jwks; el id_token lo arma el test con el nonce del flujo.
type idp struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu    sync.Mutex
	nonce string
}

func newIdP(t *testing.T) *idp {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	i := &idp{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA", "kid": "k1", "use": "sig", "alg": "RS256",
			"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		i.mu.Lock()
		nonce := i.nonce
		i.mu.Unlock()
		now := time.Now()
		tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, jwtv5.MapClaims{
			"iss": idpIssuer, "aud": "cp-console", "sub": "idp-ops",
			"email": testEmail, "email_verified": true, "amr": []string{"pwd"},
			"nonce": nonce, "iat": now.Unix(), "exp": now.Add(5 * time.Minute).Unix(),
		})
		tok.Header["kid"] = "k1"
		raw, err := tok.SignedString(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600, "id_token": raw,
		})
	})
	i.srv = httptest.NewServer(mux)
	t.Cleanup(i.srv.Close)
	return i
}

func newOAuthEnv(t *testing.T) (*env, *idp) {
	t.Helper()
	i := newIdP(t)
	yml := `oauth:
  providers:
    - name: corp
      issuer: ` + idpIssuer + `
      client_id: cp-console
      client_secret: s3cret
      redirect_url: https://cp.example.com/v1/oauth/corp/callback
      auth_url: ` + idpIssuer + `/authorize
      token_url: ` + i.srv.URL + `/token
      jwks_url: ` + i.srv.URL + `/jwks
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	return newEnvFrom(t, path), i
}

// oauthStart devuelve el state del auth URL y las cookies transitorias emitidas.
func (e *env) oauthStart(t *testing.T, i *idp) (string, []*http.Cookie) {
	t.Helper()
	rec := e.do(call{method: http.MethodGet, path: "/v1/oauth/corp/start?mode=json"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp oauthdto.StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	u, err := url.Parse(resp.AuthURL)
	require.NoError(t, err)

	i.mu.Lock()
	i.nonce = u.Query().Get("nonce")
	i.mu.Unlock()

	var flow []*http.Cookie
	for _, name := range []string{helpers.CookieOAuthState, helpers.CookieOAuthNonce, helpers.CookieOAuthVerify} {
		ck := cookie(rec, name)
		require.NotNil(t, ck, name)
		require.NotEmpty(t, ck.Value, name)
		flow = append(flow, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return u.Query().Get("state"), flow
}

func requireCleared(t *testing.T, rec *httptest.ResponseRecorder, names ...string) {
	t.Helper()
	for _, name := range names {
		ck := cookie(rec, name)
		require.NotNil(t, ck, name)
		require.Empty(t, ck.Value, name)
		require.Less(t, ck.MaxAge, 0, name)
	}
}

func TestOAuthCallbackFailureClearsFlowCookies(t *testing.T) {
	e, i := newOAuthEnv(t)
	_, flow := e.oauthStart(t, i)

	rec := e.do(call{method: http.MethodGet, path: "/v1/oauth/corp/callback?state=forged&code=auth-code", cookies: flow})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Equal(t, "INVALID_STATE", errorCode(t, rec))
	requireCleared(t, rec, helpers.CookieOAuthState, helpers.CookieOAuthNonce, helpers.CookieOAuthVerify)
}

func TestOAuthCompleteClearsPendingCookies(t *testing.T) {
	e, i := newOAuthEnv(t)
	ctx := context.Background()

	key, err := e.deps.MFA.Setup(ctx, e.pid)
	require.NoError(t, err)
	code, err := totp.Code(key.Secret, time.Now())
	require.NoError(t, err)
	_, err = e.deps.MFA.Enable(ctx, e.pid, code)
	require.NoError(t, err)

	state, flow := e.oauthStart(t, i)
	rec := e.do(call{method: http.MethodGet, path: "/v1/oauth/corp/callback?state=" + url.QueryEscape(state) + "&code=auth-code", cookies: flow})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireCleared(t, rec, helpers.CookieOAuthState, helpers.CookieOAuthNonce, helpers.CookieOAuthVerify)

	var pending oauthdto.PendingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Equal(t, "mfa_required", pending.Status)
	challenge := cookie(rec, helpers.CookieMFAChallenge)
	csrf := cookie(rec, helpers.CookieMFACSRF)
	require.NotNil(t, challenge)
	require.NotNil(t, csrf)
	cookies := []*http.Cookie{{Name: challenge.Name, Value: challenge.Value}, {Name: csrf.Name, Value: csrf.Value}}

	// el step usado en Enable no se acepta dos veces: se usa el siguiente, dentro del skew
	code, err = totp.Code(key.Secret, time.Now().Add(totp.Period*time.Second))
	require.NoError(t, err)
	rec = e.do(call{
		method:  http.MethodPost,
		path:    "/v1/oauth/complete",
		body:    `{"code":"` + code + `"}`,
		cookies: cookies,
		headers: map[string]string{"Origin": testOrigin, helpers.HeaderCSRF: csrf.Value},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	requireCleared(t, rec, helpers.CookieMFAChallenge, helpers.CookieMFACSRF)
	require.NotNil(t, cookie(rec, helpers.CookieRefresh))

	var tok dto.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.Equal(t, e.pid, tok.PrincipalID)

	// el challenge ya se consumió: la respuesta vuelve a limpiar las cookies
	rec = e.do(call{
		method:  http.MethodPost,
		path:    "/v1/oauth/complete",
		body:    `{"code":"` + code + `"}`,
		cookies: cookies,
		headers: map[string]string{"Origin": testOrigin, helpers.HeaderCSRF: csrf.Value},
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "MFA_CHALLENGE_EXPIRED", errorCode(t, rec))
	requireCleared(t, rec, helpers.CookieMFAChallenge, helpers.CookieMFACSRF)
}
