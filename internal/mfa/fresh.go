package mfa

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

func freshKey(principalID string) string { return "mfa:fresh:" + principalID }

// MarkFresh registra una verificación MFA exitosa ahora.
func (s *Service) MarkFresh(ctx context.Context, principalID string) error {
	now := s.cfg.Now()
	v := strconv.FormatInt(now.UnixMilli(), 10)
	if err := s.kv.Set(ctx, freshKey(principalID), v, s.cfg.FreshnessTTL); err != nil {
		return fmt.Errorf("mfa: mark fresh: %w", err)
	}
	return nil
}

// IsFresh es true si la última verificación ocurrió hace menos de FreshnessTTL.
// El TTL del store es solo limpieza; la expiración exacta se decide contra el reloj.
func (s *Service) IsFresh(ctx context.Context, principalID string) bool {
	v, err := s.kv.Get(ctx, freshKey(principalID))
	if err != nil {
		return false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false
	}
	at := time.UnixMilli(ms)
	return s.cfg.Now().Before(at.Add(s.cfg.FreshnessTTL))
}

// RequireFresh devuelve ErrReauthRequired si no hay verificación reciente.
func (s *Service) RequireFresh(ctx context.Context, principalID string) error {
	if !s.IsFresh(ctx, principalID) {
		return ErrReauthRequired
	}
	return nil
}

// ClearFresh se usa al cerrar sesión o cambiar credenciales.
func (s *Service) ClearFresh(ctx context.Context, principalID string) {
	_, _ = s.kv.Delete(ctx, freshKey(principalID))
}
