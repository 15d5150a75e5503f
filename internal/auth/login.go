package auth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/security/ipallow"
	"github.com/dropDatabas3/cpauth/internal/security/password"
	"github.com/dropDatabas3/cpauth/internal/util"
)

// LoginInput datos del request de login.
type LoginInput struct {
	Email        string
	Password     string
	MFACode      string
	CaptchaToken string
	IP           string
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Tokens, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.login"), logger.Op("Login"))

	email := principal.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}
	th := s.deps.Throttle

	// 1. Soft lock y backoff pendiente se chequean antes de tocar credenciales.
	if locked, left := th.CheckSoftLock(ctx, email); locked {
		metrics.LoginAttempts.WithLabelValues("soft_locked").Inc()
		return nil, &ThrottledError{Locked: true, RetryAfter: left}
	}
	if left := th.CheckBackoff(ctx, email, in.IP); left > 0 {
		metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		return nil, &ThrottledError{RetryAfter: left}
	}

	// 2. Captcha adaptativo.
	if s.deps.Captcha != nil && th.NeedsCaptcha(ctx, email, in.IP) {
		if in.CaptchaToken == "" || !s.deps.Captcha.Verify(ctx, in.CaptchaToken, in.IP) {
			metrics.LoginAttempts.WithLabelValues("captcha_required").Inc()
			return nil, ErrCaptchaRequired
		}
	}

	// 3. Credenciales. Identidad desconocida gasta el mismo costo que una real.
	p, err := s.deps.Directory.ByEmail(ctx, email)
	switch {
	case isNotFound(err):
		password.VerifyDummy(in.Password)
		return nil, s.fail(ctx, email, in.IP, "", "unknown_identity", ErrInvalidCredentials)
	case err != nil:
		log.Error("directory lookup failed", logger.Err(err))
		return nil, err
	}
	if !p.HasPassword() {
		password.VerifyDummy(in.Password)
		return nil, s.fail(ctx, email, in.IP, p.ID, "no_password", ErrInvalidCredentials)
	}
	if !password.Verify(in.Password, *p.PasswordHash) {
		return nil, s.fail(ctx, email, in.IP, p.ID, "bad_password", ErrInvalidCredentials)
	}

	// 4. Estado de cuenta.
	if p.Disabled() {
		s.deps.Audit.Log(ctx, audit.Event{Type: audit.LoginFailed, PrincipalID: p.ID, IP: in.IP, Reason: "disabled", At: s.now()})
		metrics.LoginAttempts.WithLabelValues("disabled").Inc()
		return nil, ErrAccountDisabled
	}

	// 5. Segundo factor.
	if p.MFAEnabled {
		if in.MFACode == "" {
			metrics.LoginAttempts.WithLabelValues("mfa_required").Inc()
			return nil, ErrMFARequired
		}
		if _, err := s.deps.MFA.Verify(ctx, p, in.MFACode); err != nil {
			if errors.Is(err, mfa.ErrInvalidCode) {
				return nil, s.fail(ctx, email, in.IP, p.ID, "bad_mfa", ErrInvalidMFACode)
			}
			return nil, err
		}
	}

	// 6. Allowlist de IP.
	if !ipallow.Permits(p.IPAllowlist, in.IP) {
		s.deps.Audit.Log(ctx, audit.Event{Type: audit.IPDenied, PrincipalID: p.ID, IP: in.IP, At: s.now()})
		metrics.LoginAttempts.WithLabelValues("ip_denied").Inc()
		return nil, ErrIPDenied
	}

	th.ClearFailures(ctx, email, in.IP)
	s.maybeRehash(ctx, p, in.Password)

	tok, err := s.IssueSession(ctx, p)
	if err != nil {
		log.Error("issue session failed", logger.Err(err))
		return nil, err
	}
	s.deps.Audit.Log(ctx, audit.Event{Type: audit.LoginSucceeded, PrincipalID: p.ID, IP: in.IP, At: s.now()})
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	log.Info("login ok", logger.PrincipalID(p.ID))
	return tok, nil
}

// fail registra la falla en el throttle y en auditoría. Si la falla dispara el soft lock,
// devuelve el error de throttle en lugar de ret.
func (s *Service) fail(ctx context.Context, email, ip, principalID, reason string, ret error) error {
	d := s.deps.Throttle.RecordFailure(ctx, email, ip)
	logger.From(ctx).Debug("login failed",
		logger.String("email", util.MaskEmail(email)),
		logger.String("reason", reason),
		logger.Count(int(d.Failures)),
	)
	s.deps.Audit.Log(ctx, audit.Event{
		Type:        audit.LoginFailed,
		PrincipalID: principalID,
		IP:          ip,
		Reason:      reason,
		Metadata:    map[string]any{"failures": d.Failures},
		At:          s.now(),
	})
	metrics.LoginAttempts.WithLabelValues("failure").Inc()
	if d.Locked {
		return &ThrottledError{Locked: true, RetryAfter: d.RetryAfter}
	}
	return ret
}

func (s *Service) maybeRehash(ctx context.Context, p *principal.Principal, plain string) {
	if !password.NeedsRehash(s.deps.Hashing, *p.PasswordHash) {
		return
	}
	h, err := password.Hash(s.deps.Hashing, plain)
	if err != nil {
		return
	}
	if err := s.deps.Directory.UpdatePasswordHash(ctx, p.ID, h); err != nil {
		logger.From(ctx).Warn("password rehash failed", logger.Component("auth.login"), logger.Err(err))
	}
}
