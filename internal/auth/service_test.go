package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/jwt"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/rate"
	"github.com/dropDatabas3/cpauth/internal/security/password"
	"github.com/dropDatabas3/cpauth/internal/security/secretbox"
	"github.com/dropDatabas3/cpauth/internal/security/totp"
	"github.com/dropDatabas3/cpauth/internal/session"
)

var cheap = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

const goodPassword = "Correct-Horse-42"

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type captcha struct{ ok bool }

func (c captcha) Verify(context.Context, string, string) bool { return c.ok }

type env struct {
	svc   *Service
	dir   *principal.Memory
	rec   *audit.Recorder
	clk   *clock
	mfa   *mfa.Service
	deps  Deps
	admin *principal.Principal
}

func newEnv(t *testing.T, mutate func(*Deps)) *env {
	t.Helper()
	clk := &clock{t: time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)}
	rec := audit.NewRecorder()
	dir := principal.NewMemory()

	hash, err := password.Hash(cheap, goodPassword)
	require.NoError(t, err)
	admin := &principal.Principal{
		ID: "p-admin", Email: "admin@example.com", PasswordHash: &hash,
		Roles: []string{"platform_admin"}, Permissions: []string{"tenants:*"},
	}
	dir.Put(admin)

	keys, _, err := jwt.KeysFromSeeds("", "", "", false)
	require.NoError(t, err)
	tokens, err := jwt.NewService(jwt.Config{Issuer: "cp", Now: clk.Now}, keys)
	require.NoError(t, err)

	kv := cache.NewMemory("auth-test")
	box, err := secretbox.New(bytes.Repeat([]byte{1}, secretbox.KeySize), nil)
	require.NoError(t, err)
	mfaSvc := mfa.NewService(dir, box, kv, mfa.Config{Skew: 1, Now: clk.Now}, rec, nil)

	tcfg := rate.DefaultThrottleConfig()
	tcfg.Now = clk.Now
	deps := Deps{
		Directory: dir,
		Throttle:  rate.NewThrottle(kv, tcfg, rec),
		Tokens:    tokens,
		Sessions:  session.NewStore(kv, session.Config{Now: clk.Now}, rec, rec),
		MFA:       mfaSvc,
		Audit:     rec,
		Hashing:   cheap,
		Now:       clk.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &env{svc: NewService(deps), dir: dir, rec: rec, clk: clk, mfa: mfaSvc, deps: deps, admin: admin}
}

func (e *env) login(ip, pw string) (*Tokens, error) {
	return e.svc.Login(context.Background(), LoginInput{Email: "Admin@Example.com", Password: pw, IP: ip})
}

func TestLoginIssuesSession(t *testing.T) {
	e := newEnv(t, nil)
	tok, err := e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.Equal(t, "p-admin", tok.PrincipalID)

	claims, err := e.svc.Authenticate(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, []string{"platform_admin"}, claims.Roles)

	rc, err := e.deps.Tokens.VerifyRefresh(tok.RefreshToken)
	require.NoError(t, err)
	active, err := e.deps.Sessions.IsActive(context.Background(), rc.ID)
	require.NoError(t, err)
	require.True(t, active)
	require.True(t, e.rec.Has(audit.LoginSucceeded))
}

func TestUnknownAndWrongPasswordAreIndistinguishable(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.svc.Login(context.Background(), LoginInput{Email: "ghost@example.com", Password: "x", IP: "1.1.1.1"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.login("1.1.1.1", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshReuseContainment(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	first, err := e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)

	e.clk.Advance(10 * time.Second)
	second, err := e.svc.Refresh(ctx, first.RefreshToken, "198.51.100.7")
	require.NoError(t, err)

	e.clk.Advance(10 * time.Second)
	_, err = e.svc.Refresh(ctx, first.RefreshToken, "203.0.113.66")
	require.ErrorIs(t, err, ErrSessionRevoked)
	require.True(t, e.rec.Has(audit.SessionReuse))

	// el refresh legítimo también quedó revocado
	_, err = e.svc.Refresh(ctx, second.RefreshToken, "198.51.100.7")
	require.ErrorIs(t, err, ErrSessionRevoked)

	// y los access tokens emitidos antes del watermark
	_, err = e.svc.Authenticate(ctx, second.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	// un login nuevo funciona
	e.clk.Advance(time.Second)
	fresh, err := e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)
	_, err = e.svc.Authenticate(ctx, fresh.AccessToken)
	require.NoError(t, err)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	tok, err := e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)
	require.NoError(t, e.svc.Logout(ctx, tok.RefreshToken))
	require.NoError(t, e.svc.Logout(ctx, "garbage"))

	_, err = e.svc.Refresh(ctx, tok.RefreshToken, "198.51.100.7")
	require.ErrorIs(t, err, ErrSessionRevoked)

	// el access token del par cerrado también cae
	_, err = e.svc.Authenticate(ctx, tok.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestContainmentCutsAccessTokenMintedInSameSecond(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	first, err := e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)

	// rotación del atacante y reuso del legítimo dentro del mismo segundo
	e.clk.Advance(time.Minute)
	stolen, err := e.svc.Refresh(ctx, first.RefreshToken, "203.0.113.66")
	require.NoError(t, err)
	e.clk.Advance(400 * time.Millisecond)
	_, err = e.svc.Refresh(ctx, first.RefreshToken, "198.51.100.7")
	require.ErrorIs(t, err, ErrSessionRevoked)

	_, err = e.svc.Authenticate(ctx, stolen.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, err = e.svc.Authenticate(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRotatedSessionKeepsItsAccessToken(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	first, err := e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)

	e.clk.Advance(10 * time.Second)
	_, err = e.svc.Refresh(ctx, first.RefreshToken, "198.51.100.7")
	require.NoError(t, err)

	claims, err := e.svc.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)
	require.NotEmpty(t, claims.SessionID)
}

func TestCaptchaGate(t *testing.T) {
	e := newEnv(t, func(d *Deps) { d.Captcha = captcha{ok: false} })
	for i := 0; i < 3; i++ {
		_, err := e.login("192.0.2.1", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := e.login("192.0.2.1", goodPassword)
	require.ErrorIs(t, err, ErrCaptchaRequired)

	// el contador por identidad también aplica desde otra IP
	_, err = e.login("192.0.2.200", goodPassword)
	require.ErrorIs(t, err, ErrCaptchaRequired)
}

func TestBackoffBlocksNextAttempt(t *testing.T) {
	e := newEnv(t, nil)
	for i := 0; i < 5; i++ {
		_, err := e.login("192.0.2.1", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := e.login("192.0.2.1", goodPassword)
	var te *ThrottledError
	require.True(t, errors.As(err, &te))
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, time.Second, te.RetryAfter)

	e.clk.Advance(time.Second)
	_, err = e.login("192.0.2.1", goodPassword)
	require.NoError(t, err)
}

func TestSoftLockThenReset(t *testing.T) {
	e := newEnv(t, nil)
	var last error
	for i := 0; i < 20; i++ {
		_, last = e.login(fmt.Sprintf("192.0.2.%d", i+1), "wrong")
	}
	require.ErrorIs(t, last, ErrSoftLocked)
	require.NotEmpty(t, e.rec.SecurityEvents())

	_, err := e.login("198.51.100.7", goodPassword)
	var te *ThrottledError
	require.True(t, errors.As(err, &te))
	require.True(t, te.Locked)
	require.Greater(t, te.RetryAfter, time.Duration(0))

	e.clk.Advance(5 * time.Minute)
	_, err = e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)
}

func TestMFAAndIPAllowlist(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	key, err := e.mfa.Setup(ctx, "p-admin")
	require.NoError(t, err)
	code, _ := totp.Code(key.Secret, e.clk.Now())
	_, err = e.mfa.Enable(ctx, "p-admin", code)
	require.NoError(t, err)
	e.clk.Advance(totp.Period * time.Second)

	p, _ := e.dir.ByID(ctx, "p-admin")
	p.IPAllowlist = []string{"10.0.0.0/24"}
	e.dir.Put(p)

	_, err = e.login("10.0.0.5", goodPassword)
	require.ErrorIs(t, err, ErrMFARequired)

	_, err = e.svc.Login(ctx, LoginInput{Email: "admin@example.com", Password: goodPassword, MFACode: "000000", IP: "10.0.0.5"})
	require.ErrorIs(t, err, ErrInvalidMFACode)

	code, _ = totp.Code(key.Secret, e.clk.Now())
	_, err = e.svc.Login(ctx, LoginInput{Email: "admin@example.com", Password: goodPassword, MFACode: code, IP: "192.0.2.9"})
	require.ErrorIs(t, err, ErrIPDenied)
	require.True(t, e.rec.Has(audit.IPDenied))

	e.clk.Advance(totp.Period * time.Second)
	code, _ = totp.Code(key.Secret, e.clk.Now())
	_, err = e.svc.Login(ctx, LoginInput{Email: "admin@example.com", Password: goodPassword, MFACode: code, IP: "::ffff:10.0.0.5"})
	require.NoError(t, err)
}

func TestDisabledAccount(t *testing.T) {
	e := newEnv(t, nil)
	p, _ := e.dir.ByID(context.Background(), "p-admin")
	p.Status = principal.StatusDisabled
	e.dir.Put(p)

	_, err := e.login("198.51.100.7", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.login("198.51.100.7", goodPassword)
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	tok, err := e.login("198.51.100.7", goodPassword)
	require.NoError(t, err)

	key, err := e.mfa.Setup(ctx, "p-admin")
	require.NoError(t, err)
	code, _ := totp.Code(key.Secret, e.clk.Now())
	_, err = e.mfa.Enable(ctx, "p-admin", code)
	require.NoError(t, err)

	e.clk.Advance(6 * time.Minute)
	in := ChangePasswordInput{PrincipalID: "p-admin", Current: goodPassword, New: "An0ther-Strong-Pass", IP: "198.51.100.7"}
	require.ErrorIs(t, e.svc.ChangePassword(ctx, in), ErrReauthRequired)

	bad := in
	bad.Current = "nope"
	require.ErrorIs(t, e.svc.ChangePassword(ctx, bad), ErrInvalidCredentials)

	require.NoError(t, e.mfa.MarkFresh(ctx, "p-admin"))
	weak := in
	weak.New = "short"
	var pe *PolicyError
	require.True(t, errors.As(e.svc.ChangePassword(ctx, weak), &pe))
	require.Contains(t, pe.Reasons, "too_short")

	common := in
	common.New = "Welcome12345"
	require.True(t, errors.As(e.svc.ChangePassword(ctx, common), &pe))
	require.Equal(t, []string{"too_common"}, pe.Reasons)

	require.NoError(t, e.svc.ChangePassword(ctx, in))
	require.True(t, e.rec.Has(audit.PasswordChanged))

	_, err = e.svc.Refresh(ctx, tok.RefreshToken, "198.51.100.7")
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, err = e.svc.Authenticate(ctx, tok.AccessToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	// la password vieja ya no sirve
	e.clk.Advance(time.Second)
	_, err = e.svc.Login(ctx, LoginInput{Email: "admin@example.com", Password: goodPassword, IP: "198.51.100.7"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
