package oauth

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/auth"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/jwt"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/rate"
	"github.com/dropDatabas3/cpauth/internal/security/secretbox"
	"github.com/dropDatabas3/cpauth/internal/security/totp"
	"github.com/dropDatabas3/cpauth/internal/session"
)

const (
	testIssuer   = "https://idp.example.com"
	testClientID = "cp-console"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeIdP expone el token endpoint y firma id_tokens con una clave RSA propia.
type fakeIdP struct {
	srv  *httptest.Server
	key  *rsa.PrivateKey
	mu   sync.Mutex
	next func() string // id_token a devolver; "" = sin id_token

	lastVerifier string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idp := &fakeIdP{key: key}
	idp.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") == "" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		idp.mu.Lock()
		idp.lastVerifier = r.Form.Get("code_verifier")
		next := idp.next
		idp.mu.Unlock()

		body := map[string]any{"access_token": "at-123", "token_type": "Bearer", "expires_in": 3600}
		if next != nil {
			if raw := next(); raw != "" {
				body["id_token"] = raw
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(idp.srv.Close)
	return idp
}

func (i *fakeIdP) sign(t *testing.T, key *rsa.PrivateKey, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func (i *fakeIdP) issue(fn func() string) {
	i.mu.Lock()
	i.next = fn
	i.mu.Unlock()
}

type env struct {
	svc   *Service
	idp   *fakeIdP
	clk   *clock
	dir   *principal.Memory
	rec   *audit.Recorder
	kv    cache.Client
	mfa   *mfa.Service
	cfg   ProviderConfig
	admin *principal.Principal
}

func newEnv(t *testing.T, mutate func(*ProviderConfig)) *env {
	t.Helper()
	clk := &clock{t: time.Date(2026, 8, 3, 14, 0, 0, 0, time.UTC)}
	idp := newFakeIdP(t)
	rec := audit.NewRecorder()
	dir := principal.NewMemory()
	admin := &principal.Principal{ID: "p-ops", Email: "ops@example.com", Roles: []string{"platform_admin"}}
	dir.Put(admin)

	pcfg := ProviderConfig{
		Name:         "corp",
		Issuer:       testIssuer,
		ClientID:     testClientID,
		ClientSecret: "s3cret",
		RedirectURL:  "https://cp.example.com/v1/auth/oauth/corp/callback",
	}
	if mutate != nil {
		mutate(&pcfg)
	}
	ep := oauth2.Endpoint{
		AuthURL:   testIssuer + "/authorize",
		TokenURL:  idp.srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	provider := newProvider(pcfg, ep, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&idp.key.PublicKey}})

	keys, _, err := jwt.KeysFromSeeds("", "", "", false)
	require.NoError(t, err)
	issuer, err := jwt.NewService(jwt.Config{Issuer: "cp", Now: clk.Now}, keys)
	require.NoError(t, err)

	kv := cache.NewMemory("oauth-test")
	box, err := secretbox.New(bytes.Repeat([]byte{3}, secretbox.KeySize), nil)
	require.NoError(t, err)
	mfaSvc := mfa.NewService(dir, box, kv, mfa.Config{Skew: 1, Now: clk.Now}, rec, nil)
	tcfg := rate.DefaultThrottleConfig()
	tcfg.Now = clk.Now
	authSvc := auth.NewService(auth.Deps{
		Directory: dir,
		Throttle:  rate.NewThrottle(kv, tcfg, rec),
		Tokens:    issuer,
		Sessions:  session.NewStore(kv, session.Config{Now: clk.Now}, rec, rec),
		MFA:       mfaSvc,
		Audit:     rec,
		Now:       clk.Now,
	})

	svc := NewService(Deps{
		Providers: NewRegistry(provider),
		Directory: dir,
		Auth:      authSvc,
		MFA:       mfaSvc,
		KV:        kv,
		Audit:     rec,
		Events:    rec,
	}, Config{Now: clk.Now})

	return &env{svc: svc, idp: idp, clk: clk, dir: dir, rec: rec, kv: kv, mfa: mfaSvc, cfg: pcfg, admin: admin}
}

// claims arma un id_token válido para el flujo dado.
func (e *env) claims(nonce string, extra jwtv5.MapClaims) jwtv5.MapClaims {
	now := e.clk.Now()
	c := jwtv5.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            "idp-user-1",
		"email":          "ops@example.com",
		"email_verified": true,
		"nonce":          nonce,
		"iat":            now.Unix(),
		"exp":            now.Add(5 * time.Minute).Unix(),
	}
	for k, v := range extra {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	return c
}

func (e *env) start(t *testing.T) *Flow {
	t.Helper()
	f, err := e.svc.Start(context.Background(), "corp")
	require.NoError(t, err)
	return f
}

func (e *env) issueFor(t *testing.T, f *Flow, extra jwtv5.MapClaims) {
	raw := e.idp.sign(t, e.idp.key, e.claims(f.Nonce, extra))
	e.idp.issue(func() string { return raw })
}

func (e *env) callback(f *Flow, ip string) (*CallbackResult, error) {
	return e.svc.Callback(context.Background(), CallbackInput{
		Provider: "corp",
		State:    f.State,
		Code:     "auth-code",
		Cookies:  FlowCookies{State: f.State, Nonce: f.Nonce, Verifier: f.Verifier},
		IP:       ip,
	})
}

func TestStartBuildsPKCEAuthURL(t *testing.T) {
	e := newEnv(t, nil)
	f := e.start(t)

	u, err := url.Parse(f.AuthURL)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, f.State, q.Get("state"))
	require.Equal(t, f.Nonce, q.Get("nonce"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, oauth2.S256ChallengeFromVerifier(f.Verifier), q.Get("code_challenge"))
	require.Equal(t, testClientID, q.Get("client_id"))
	require.NotContains(t, f.AuthURL, f.Verifier)

	_, err = e.svc.Start(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestCallbackIssuesTokensWhenIdPAssertsMFA(t *testing.T) {
	e := newEnv(t, nil)
	f := e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"pwd", "mfa"}})

	res, err := e.callback(f, "203.0.113.7")
	require.NoError(t, err)
	require.Nil(t, res.Pending)
	require.NotNil(t, res.Tokens)
	require.Equal(t, e.admin.ID, res.PrincipalID)
	require.Equal(t, f.Verifier, e.idp.lastVerifier, "PKCE verifier must be sent on exchange")

	// vínculo por email verificado
	p, err := e.dir.BySSOSubject(context.Background(), principal.SSOSubject("corp", "idp-user-1"))
	require.NoError(t, err)
	require.Equal(t, e.admin.ID, p.ID)
	require.True(t, e.rec.Has(audit.OAuthLogin))
}

func TestNonceIsSingleUse(t *testing.T) {
	e := newEnv(t, nil)
	f := e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"otp"}})

	_, err := e.callback(f, "203.0.113.7")
	require.NoError(t, err)

	// mismo code/cookies/id_token reenviados
	_, err = e.callback(f, "203.0.113.7")
	require.ErrorIs(t, err, ErrInvalidNonce)
	require.True(t, e.rec.Has(audit.OAuthNonceReplay))

	evs := e.rec.SecurityEvents()
	require.NotEmpty(t, evs)
	require.Equal(t, audit.OAuthNonceReplay, evs[len(evs)-1].Kind)
}

func TestCookieGatesDoNotConsumeNonce(t *testing.T) {
	e := newEnv(t, nil)
	f := e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"mfa"}})
	ctx := context.Background()

	cases := []struct {
		name string
		in   CallbackInput
		want error
	}{
		{"state mismatch", CallbackInput{State: "other", Code: "c", Cookies: FlowCookies{State: f.State, Nonce: f.Nonce, Verifier: f.Verifier}}, ErrInvalidState},
		{"state cookie missing", CallbackInput{State: f.State, Code: "c", Cookies: FlowCookies{Nonce: f.Nonce, Verifier: f.Verifier}}, ErrInvalidState},
		{"nonce cookie missing", CallbackInput{State: f.State, Code: "c", Cookies: FlowCookies{State: f.State, Verifier: f.Verifier}}, ErrInvalidNonce},
		{"verifier cookie missing", CallbackInput{State: f.State, Code: "c", Cookies: FlowCookies{State: f.State, Nonce: f.Nonce}}, ErrInvalidState},
		{"provider error", CallbackInput{State: f.State, Error: "access_denied", Cookies: FlowCookies{State: f.State, Nonce: f.Nonce, Verifier: f.Verifier}}, ErrProviderDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.in.Provider = "corp"
			_, err := e.svc.Callback(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	// el nonce sigue disponible para el callback legítimo
	_, err := e.callback(f, "203.0.113.7")
	require.NoError(t, err)
}

func TestNonceMismatchKeepsServerNonce(t *testing.T) {
	e := newEnv(t, nil)
	f := e.start(t)
	raw := e.idp.sign(t, e.idp.key, e.claims("attacker-nonce", jwtv5.MapClaims{"amr": []string{"mfa"}}))
	e.idp.issue(func() string { return raw })

	_, err := e.callback(f, "203.0.113.7")
	require.ErrorIs(t, err, ErrInvalidNonce)
	require.False(t, e.rec.Has(audit.OAuthNonceReplay))

	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"mfa"}})
	_, err = e.callback(f, "203.0.113.7")
	require.NoError(t, err)
}

func TestIDTokenValidation(t *testing.T) {
	foreign, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token func(e *env, f *Flow) string
	}{
		{"missing id_token", func(*env, *Flow) string { return "" }},
		{"wrong audience", func(e *env, f *Flow) string {
			return e.idp.sign(t, e.idp.key, e.claims(f.Nonce, jwtv5.MapClaims{"aud": "someone-else"}))
		}},
		{"wrong issuer", func(e *env, f *Flow) string {
			return e.idp.sign(t, e.idp.key, e.claims(f.Nonce, jwtv5.MapClaims{"iss": "https://evil.example.com"}))
		}},
		{"foreign key", func(e *env, f *Flow) string {
			return e.idp.sign(t, foreign, e.claims(f.Nonce, nil))
		}},
		{"expired beyond skew", func(e *env, f *Flow) string {
			return e.idp.sign(t, e.idp.key, e.claims(f.Nonce, jwtv5.MapClaims{"exp": e.clk.Now().Add(-3 * time.Minute).Unix()}))
		}},
		{"issued in the future", func(e *env, f *Flow) string {
			return e.idp.sign(t, e.idp.key, e.claims(f.Nonce, jwtv5.MapClaims{"iat": e.clk.Now().Add(5 * time.Minute).Unix()}))
		}},
		{"too old", func(e *env, f *Flow) string {
			return e.idp.sign(t, e.idp.key, e.claims(f.Nonce, jwtv5.MapClaims{"iat": e.clk.Now().Add(-time.Hour).Unix()}))
		}},
		{"missing sub", func(e *env, f *Flow) string {
			return e.idp.sign(t, e.idp.key, e.claims(f.Nonce, jwtv5.MapClaims{"sub": nil}))
		}},
		{"hmac alg", func(e *env, f *Flow) string {
			tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, e.claims(f.Nonce, nil))
			raw, err := tok.SignedString([]byte(e.cfg.ClientSecret))
			require.NoError(t, err)
			return raw
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil)
			f := e.start(t)
			raw := tc.token(e, f)
			e.idp.issue(func() string { return raw })

			_, err := e.callback(f, "203.0.113.7")
			require.ErrorIs(t, err, ErrInvalidIDToken)

			// la verificación falló antes del consumo del nonce
			_, err = e.kv.Get(context.Background(), nonceKey("corp", f.Nonce))
			require.NoError(t, err)
		})
	}
}

func TestExpiryWithinSkewIsAccepted(t *testing.T) {
	e := newEnv(t, nil)
	f := e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{
		"amr": []string{"mfa"},
		"iat": e.clk.Now().Add(-6 * time.Minute).Unix(),
		"exp": e.clk.Now().Add(-time.Minute).Unix(),
	})
	_, err := e.callback(f, "203.0.113.7")
	require.NoError(t, err)
}

func TestProvisioningGate(t *testing.T) {
	t.Run("unknown email without JIT", func(t *testing.T) {
		e := newEnv(t, nil)
		f := e.start(t)
		e.issueFor(t, f, jwtv5.MapClaims{"sub": "new-1", "email": "new@example.com", "amr": []string{"mfa"}})
		_, err := e.callback(f, "203.0.113.7")
		require.ErrorIs(t, err, ErrProvisioningDenied)
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unverified email never binds", func(t *testing.T) {
		e := newEnv(t, nil)
		f := e.start(t)
		e.issueFor(t, f, jwtv5.MapClaims{"email_verified": false, "amr": []string{"mfa"}})
		_, err := e.callback(f, "203.0.113.7")
		require.ErrorIs(t, err, ErrProvisioningDenied)
	})

	t.Run("JIT restricted to allowed domains", func(t *testing.T) {
		e := newEnv(t, func(c *ProviderConfig) {
			c.AllowJIT = true
			c.AllowedDomains = []string{"example.com"}
			c.DefaultRoles = []string{"platform_viewer"}
		})
		f := e.start(t)
		e.issueFor(t, f, jwtv5.MapClaims{"sub": "x-1", "email": "intruder@evil.test", "amr": []string{"mfa"}})
		_, err := e.callback(f, "203.0.113.7")
		require.ErrorIs(t, err, ErrProvisioningDenied)

		f = e.start(t)
		e.issueFor(t, f, jwtv5.MapClaims{"sub": "new-2", "email": "New@Example.com", "email_verified": "true", "amr": []string{"mfa"}})
		res, err := e.callback(f, "203.0.113.7")
		require.NoError(t, err)

		p, err := e.dir.ByID(context.Background(), res.PrincipalID)
		require.NoError(t, err)
		require.Equal(t, "new@example.com", p.Email)
		require.Equal(t, []string{"platform_viewer"}, p.Roles)
		require.False(t, p.HasPassword())
		require.True(t, e.rec.Has(audit.OAuthProvisioned))

		// segundo login resuelve por subject aunque cambie el email
		f = e.start(t)
		e.issueFor(t, f, jwtv5.MapClaims{"sub": "new-2", "email": "renamed@example.com", "amr": []string{"mfa"}})
		res2, err := e.callback(f, "203.0.113.7")
		require.NoError(t, err)
		require.Equal(t, res.PrincipalID, res2.PrincipalID)
	})
}

func TestCallbackEnforcesAccountStateAndIPAllowlist(t *testing.T) {
	e := newEnv(t, nil)
	e.admin.IPAllowlist = []string{"10.0.0.0/24"}
	e.dir.Put(e.admin)

	f := e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"mfa"}})
	_, err := e.callback(f, "203.0.113.7")
	require.ErrorIs(t, err, auth.ErrIPDenied)
	require.True(t, e.rec.Has(audit.IPDenied))

	f = e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"mfa"}})
	_, err = e.callback(f, "::ffff:10.0.0.5")
	require.NoError(t, err)

	e.admin.Status = principal.StatusDisabled
	e.dir.Put(e.admin)
	f = e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"mfa"}})
	_, err = e.callback(f, "10.0.0.5")
	require.ErrorIs(t, err, auth.ErrAccountDisabled)
}

// enableMFA enrola TOTP y avanza un time-step para no chocar con el anti-replay.
func (e *env) enableMFA(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	key, err := e.mfa.Setup(ctx, e.admin.ID)
	require.NoError(t, err)
	code, err := totp.Code(key.Secret, e.clk.Now())
	require.NoError(t, err)
	_, err = e.mfa.Enable(ctx, e.admin.ID, code)
	require.NoError(t, err)
	e.clk.Advance(totp.Period * time.Second)
	return key.Secret
}

func (e *env) pending(t *testing.T) *Challenge {
	t.Helper()
	f := e.start(t)
	e.issueFor(t, f, jwtv5.MapClaims{"amr": []string{"pwd"}, "acr": "urn:example:aal1"})
	res, err := e.callback(f, "203.0.113.7")
	require.NoError(t, err)
	require.Nil(t, res.Tokens)
	require.NotNil(t, res.Pending)
	return res.Pending
}

func TestPendingChallengeCompletesOnce(t *testing.T) {
	e := newEnv(t, nil)
	secret := e.enableMFA(t)
	ch := e.pending(t)
	require.True(t, e.rec.Has(audit.OAuthMFAPending))
	ctx := context.Background()

	code, err := totp.Code(secret, e.clk.Now())
	require.NoError(t, err)

	_, err = e.svc.Complete(ctx, CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: "forged", Code: code, IP: "203.0.113.7"})
	require.ErrorIs(t, err, ErrCSRFMismatch)
	_, err = e.svc.Complete(ctx, CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, Code: code, IP: "203.0.113.7"})
	require.ErrorIs(t, err, ErrCSRFMismatch)

	tok, err := e.svc.Complete(ctx, CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: ch.CSRF, Code: code, IP: "203.0.113.7"})
	require.NoError(t, err)
	require.NotEmpty(t, tok.RefreshToken)

	e.clk.Advance(totp.Period * time.Second)
	code, err = totp.Code(secret, e.clk.Now())
	require.NoError(t, err)
	_, err = e.svc.Complete(ctx, CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: ch.CSRF, Code: code, IP: "203.0.113.7"})
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestPendingChallengeAttemptCap(t *testing.T) {
	e := newEnv(t, nil)
	secret := e.enableMFA(t)
	ch := e.pending(t)
	ctx := context.Background()
	good, err := totp.Code(secret, e.clk.Now())
	require.NoError(t, err)
	in := CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: ch.CSRF, Code: wrongCode(t, secret, e.clk.Now()), IP: "203.0.113.7"}

	for i := 0; i < 5; i++ {
		_, err := e.svc.Complete(ctx, in)
		require.ErrorIs(t, err, auth.ErrInvalidMFACode)
	}

	in.Code = good
	_, err = e.svc.Complete(ctx, in)
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

// claimHookKV ejecuta onClaim una vez, justo después de que un request toma el challenge.
type claimHookKV struct {
	cache.Client
	once    sync.Once
	onClaim func()
}

func (k *claimHookKV) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	ok, err := k.Client.CompareAndSwap(ctx, key, old, new, ttl)
	if ok && strings.Contains(new, `"claim":"`) {
		k.once.Do(k.onClaim)
	}
	return ok, err
}

func TestChallengeIsClaimedBeforeCodeCheck(t *testing.T) {
	e := newEnv(t, nil)
	secret := e.enableMFA(t)
	ch := e.pending(t)
	ctx := context.Background()
	code, err := totp.Code(secret, e.clk.Now())
	require.NoError(t, err)
	in := CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: ch.CSRF, Code: code, IP: "203.0.113.7"}

	// un segundo request llega mientras el primero verifica el código
	var raced error
	e.svc.deps.KV = &claimHookKV{Client: e.kv, onClaim: func() {
		_, raced = e.svc.Complete(ctx, in)
	}}

	tok, err := e.svc.Complete(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, tok.RefreshToken)
	require.ErrorIs(t, raced, ErrChallengeInUse)

	_, err = e.svc.Complete(ctx, in)
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestWrongCodeReleasesClaim(t *testing.T) {
	e := newEnv(t, nil)
	secret := e.enableMFA(t)
	ch := e.pending(t)
	ctx := context.Background()
	in := CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: ch.CSRF, Code: wrongCode(t, secret, e.clk.Now()), IP: "203.0.113.7"}

	_, err := e.svc.Complete(ctx, in)
	require.ErrorIs(t, err, auth.ErrInvalidMFACode)

	raw, err := e.kv.Get(ctx, pendingKey(ch.ID))
	require.NoError(t, err)
	var rec pendingRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	require.Empty(t, rec.Claim)
	require.Equal(t, 1, rec.Attempts)

	in.Code, err = totp.Code(secret, e.clk.Now())
	require.NoError(t, err)
	_, err = e.svc.Complete(ctx, in)
	require.NoError(t, err)
}

func TestConcurrentCompleteSingleWinner(t *testing.T) {
	e := newEnv(t, nil)
	secret := e.enableMFA(t)
	ch := e.pending(t)
	code, err := totp.Code(secret, e.clk.Now())
	require.NoError(t, err)
	in := CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: ch.CSRF, Code: code, IP: "203.0.113.7"}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Complete(context.Background(), in)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.True(t, errors.Is(err, ErrChallengeInUse) || errors.Is(err, ErrChallengeNotFound), err)
	}
	require.Equal(t, 1, wins)
}

// wrongCode devuelve un código que no coincide con ningún step dentro del skew.
func wrongCode(t *testing.T, secret string, now time.Time) string {
	t.Helper()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-totp.Period * time.Second, 0, totp.Period * time.Second} {
		c, err := totp.Code(secret, now.Add(d))
		require.NoError(t, err)
		valid[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[c] {
			return c
		}
	}
	t.Fatal("no wrong code available")
	return ""
}

func TestPendingChallengeExpires(t *testing.T) {
	e := newEnv(t, nil)
	secret := e.enableMFA(t)
	ch := e.pending(t)

	e.clk.Advance(5 * time.Minute)
	code, err := totp.Code(secret, e.clk.Now())
	require.NoError(t, err)
	_, err = e.svc.Complete(context.Background(), CompleteInput{ChallengeID: ch.ID, CSRFCookie: ch.CSRF, CSRFHeader: ch.CSRF, Code: code})
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRequireMFAWithoutEnrollment(t *testing.T) {
	e := newEnv(t, nil)
	e.svc.cfg.RequireMFA = true
	f := e.start(t)
	e.issueFor(t, f, nil)
	_, err := e.callback(f, "203.0.113.7")
	require.True(t, errors.Is(err, auth.ErrMFARequired))
}

func TestMFASatisfied(t *testing.T) {
	cases := []struct {
		c    idClaims
		want bool
	}{
		{idClaims{}, false},
		{idClaims{AMR: []string{"pwd"}}, false},
		{idClaims{AMR: []string{"pwd", "MFA"}}, true},
		{idClaims{AMR: []string{"otp"}}, true},
		{idClaims{AMR: []string{"totp"}}, true},
		{idClaims{ACR: "urn:example:aal1"}, false},
		{idClaims{ACR: "http://idmanagement.gov/ns/assurance/aal/2"}, true},
		{idClaims{ACR: "http://idmanagement.gov/ns/assurance/ial/2"}, false},
		{idClaims{ACR: "AAL2"}, true},
		{idClaims{ACR: "urn:mace:aal3"}, true},
		{idClaims{ACR: "http://schemas.example.com/claims/multipleauthn/mfa"}, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.c.mfaSatisfied(), "%+v", tc.c)
	}
}

func TestProviderConfigValidation(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Name: "x", Issuer: testIssuer, ClientID: "c", RedirectURL: "https://r", Algs: []string{"HS256"}})
	require.ErrorIs(t, err, ErrProviderConfig)
	_, err = NewProvider(context.Background(), ProviderConfig{Name: "x", ClientID: "c", RedirectURL: "https://r"})
	require.ErrorIs(t, err, ErrProviderConfig)

	r := NewRegistry(newProvider(ProviderConfig{Name: "Corp", Issuer: testIssuer, ClientID: "c"}, oauth2.Endpoint{}, &oidc.StaticKeySet{}))
	p, err := r.Get("corp")
	require.NoError(t, err)
	require.Equal(t, "Corp", p.Name())
	require.Equal(t, []string{"Corp"}, r.Names())
}
