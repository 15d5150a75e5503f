package auth

import (
	"context"
	"errors"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/email"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/security/ipallow"
	"github.com/dropDatabas3/cpauth/internal/security/password"
	"github.com/dropDatabas3/cpauth/internal/session"
)

// Refresh rota el refresh token. Un jti ya rotado o revocado dispara la contención.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip string) (*Tokens, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.refresh"), logger.Op("Refresh"))

	claims, err := s.deps.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrSessionRevoked
	}
	pid := claims.Subject

	p, err := s.deps.Directory.ByID(ctx, pid)
	if isNotFound(err) {
		return nil, ErrSessionRevoked
	}
	if err != nil {
		return nil, err
	}
	if p.Disabled() {
		_ = s.deps.Sessions.Revoke(ctx, claims.ID)
		return nil, ErrAccountDisabled
	}
	if !ipallow.Permits(p.IPAllowlist, ip) {
		s.deps.Audit.Log(ctx, audit.Event{Type: audit.IPDenied, PrincipalID: pid, IP: ip, Reason: "refresh", At: s.now()})
		return nil, ErrIPDenied
	}

	pair, err := s.deps.Tokens.IssuePair(identityOf(p))
	if err != nil {
		return nil, err
	}
	err = s.deps.Sessions.Rotate(ctx, pid, claims.ID, pair.Refresh.JTI, s.deps.Tokens.RefreshTTL())
	switch {
	case errors.Is(err, session.ErrReuseDetected):
		log.Warn("refresh reuse, all sessions revoked", logger.PrincipalID(pid), logger.JTI(claims.ID))
		s.deps.Notify.Send(ctx, email.TemplateSessionReuse, p.Email, email.Vars{IP: ip})
		return nil, ErrSessionRevoked
	case errors.Is(err, session.ErrRevoked):
		return nil, ErrSessionRevoked
	case err != nil:
		log.Error("rotate failed", logger.Err(err))
		return nil, err
	}
	return tokensOf(pid, pair), nil
}

// Logout revoca la sesión del refresh presentado. Tokens inválidos se ignoran.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.deps.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.deps.Sessions.Revoke(ctx, claims.ID); err != nil {
		return err
	}
	s.deps.MFA.ClearFresh(ctx, claims.Subject)
	return nil
}

// ChangePasswordInput datos del cambio de password.
type ChangePasswordInput struct {
	PrincipalID string
	Current     string
	New         string
	IP          string
}

// ChangePassword exige la password actual y, con MFA habilitado, una verificación reciente.
// Revoca todas las sesiones; el cliente debe volver a loguearse.
func (s *Service) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.password"), logger.Op("ChangePassword"))

	p, err := s.deps.Directory.ByID(ctx, in.PrincipalID)
	if err != nil {
		return err
	}
	if !p.HasPassword() || !password.Verify(in.Current, *p.PasswordHash) {
		if !p.HasPassword() {
			password.VerifyDummy(in.Current)
		}
		return s.fail(ctx, p.Email, in.IP, p.ID, "change_password", ErrInvalidCredentials)
	}
	if p.MFAEnabled {
		if err := s.deps.MFA.RequireFresh(ctx, p.ID); err != nil {
			if errors.Is(err, mfa.ErrReauthRequired) {
				return ErrReauthRequired
			}
			return err
		}
	}
	if ok, reasons := s.deps.Policy.Validate(in.New); !ok {
		return &PolicyError{Reasons: reasons}
	}
	hash, err := password.Hash(s.deps.Hashing, in.New)
	if err != nil {
		return err
	}
	if err := s.deps.Directory.UpdatePasswordHash(ctx, p.ID, hash); err != nil {
		return err
	}
	if _, err := s.deps.Sessions.RevokeAllForUser(ctx, p.ID); err != nil {
		log.Error("revoke sessions after password change failed", logger.Err(err))
		return err
	}
	s.deps.MFA.ClearFresh(ctx, p.ID)
	s.deps.Audit.Log(ctx, audit.Event{Type: audit.PasswordChanged, PrincipalID: p.ID, IP: in.IP, At: s.now()})
	s.deps.Notify.Send(ctx, email.TemplatePasswordChanged, p.Email, email.Vars{IP: in.IP})
	log.Info("password changed", logger.PrincipalID(p.ID))
	return nil
}
