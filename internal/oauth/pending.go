package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/auth"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/mfa"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/security/ipallow"
	tokens "github.com/dropDatabas3/cpauth/internal/security/token"
)

// Challenge es el handoff hacia /complete: ID viaja en la cookie pending y CSRF en la
// cookie legible que el cliente repite en x-csrf-token.
type Challenge struct {
	ID        string
	CSRF      string
	ExpiresAt time.Time
}

type pendingRecord struct {
	PrincipalID string `json:"pid"`
	Provider    string `json:"provider"`
	CreatedAt   int64  `json:"created_ms"`
	CSRFHash    string `json:"csrf"`
	Attempts    int    `json:"attempts"`
	// Claim lo fija el request que está verificando un código; vacío = libre.
	Claim string `json:"claim,omitempty"`
}

func pendingKey(id string) string { return "oauth:pending:" + id }

func (s *Service) createChallenge(ctx context.Context, provider, principalID string) (*Challenge, error) {
	csrf, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	id := uuid.NewString()
	rec := pendingRecord{
		PrincipalID: principalID,
		Provider:    provider,
		CreatedAt:   now.UnixMilli(),
		CSRFHash:    tokens.SHA256Base64URL(csrf),
	}
	b, _ := json.Marshal(rec)
	ok, err := s.deps.KV.SetNX(ctx, pendingKey(id), string(b), s.cfg.PendingTTL)
	if err != nil {
		return nil, fmt.Errorf("oauth: store challenge: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("oauth: challenge id collision")
	}
	return &Challenge{ID: id, CSRF: csrf, ExpiresAt: now.Add(s.cfg.PendingTTL)}, nil
}

type CompleteInput struct {
	ChallengeID string
	CSRFCookie  string
	CSRFHeader  string
	Code        string
	IP          string
}

// Complete canjea un challenge pendiente por tokens tras verificar TOTP o recovery code.
// El challenge se consume una sola vez; tras MaxPendingAttempts códigos inválidos se destruye.
func (s *Service) Complete(ctx context.Context, in CompleteInput) (*auth.Tokens, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("oauth.complete"))
	if in.ChallengeID == "" {
		return nil, ErrChallengeNotFound
	}
	key := pendingKey(in.ChallengeID)

	raw, rec, err := s.loadChallenge(ctx, key)
	if err != nil {
		return nil, err
	}
	if in.CSRFHeader == "" || !tokens.Equal(in.CSRFHeader, in.CSRFCookie) ||
		!tokens.Equal(tokens.SHA256Base64URL(in.CSRFHeader), rec.CSRFHash) {
		log.Warn("csrf mismatch on mfa completion")
		return nil, ErrCSRFMismatch
	}
	if !s.cfg.Now().Before(time.UnixMilli(rec.CreatedAt).Add(s.cfg.PendingTTL)) {
		_, _ = s.deps.KV.Delete(ctx, key)
		return nil, ErrChallengeNotFound
	}

	pr, err := s.deps.Directory.ByID(ctx, rec.PrincipalID)
	if err != nil {
		return nil, err
	}
	if pr.Disabled() {
		_, _ = s.deps.KV.Delete(ctx, key)
		return nil, auth.ErrAccountDisabled
	}
	if !ipallow.Permits(pr.IPAllowlist, in.IP) {
		s.deps.Audit.Log(ctx, audit.Event{Type: audit.IPDenied, PrincipalID: pr.ID, IP: in.IP, Metadata: map[string]any{"provider": rec.Provider}})
		return nil, auth.ErrIPDenied
	}

	// el challenge se reclama antes de verificar: dos requests no pueden canjear el mismo
	claimed, err := s.claimChallenge(ctx, key, raw, rec.PrincipalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.deps.MFA.Verify(ctx, pr, in.Code); err != nil {
		bad := errors.Is(err, mfa.ErrInvalidCode)
		s.releaseChallenge(ctx, key, claimed, bad)
		if bad {
			return nil, auth.ErrInvalidMFACode
		}
		return nil, err
	}
	if _, err := s.deps.KV.Delete(ctx, key); err != nil {
		// el claim es nuestro: el registro expira solo aunque el borrado falle
		log.Warn("consume challenge failed", logger.Err(err))
	}

	tok, err := s.deps.Auth.IssueSession(ctx, pr)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.Log(ctx, audit.Event{Type: audit.OAuthLogin, PrincipalID: pr.ID, IP: in.IP, Metadata: map[string]any{"provider": rec.Provider, "mfa": "local"}})
	metrics.OAuthCallbacks.WithLabelValues(rec.Provider, "mfa_completed").Inc()
	log.Info("oauth mfa completed", logger.PrincipalID(pr.ID))
	return tok, nil
}

func (s *Service) loadChallenge(ctx context.Context, key string) (string, pendingRecord, error) {
	var rec pendingRecord
	raw, err := s.deps.KV.Get(ctx, key)
	if cache.IsNotFound(err) {
		return "", rec, ErrChallengeNotFound
	}
	if err != nil {
		return "", rec, fmt.Errorf("oauth: load challenge: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.PrincipalID == "" {
		_, _ = s.deps.KV.Delete(ctx, key)
		return "", rec, ErrChallengeNotFound
	}
	return raw, rec, nil
}

// claimChallenge marca el registro como tomado con CAS. Reintenta si solo cambió el
// contador de intentos; un registro ya tomado devuelve ErrChallengeInUse.
func (s *Service) claimChallenge(ctx context.Context, key, raw, principalID string) (string, error) {
	claim := uuid.NewString()
	for i := 0; i < 3; i++ {
		var rec pendingRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.PrincipalID != principalID {
			return "", ErrChallengeNotFound
		}
		if rec.Claim != "" {
			return "", ErrChallengeInUse
		}
		rec.Claim = claim
		b, _ := json.Marshal(rec)
		ok, err := s.deps.KV.CompareAndSwap(ctx, key, raw, string(b), 0)
		if err != nil {
			return "", fmt.Errorf("oauth: claim challenge: %w", err)
		}
		if ok {
			return string(b), nil
		}
		cur, err := s.deps.KV.Get(ctx, key)
		if cache.IsNotFound(err) {
			return "", ErrChallengeNotFound
		}
		if err != nil {
			return "", fmt.Errorf("oauth: claim challenge: %w", err)
		}
		raw = cur
	}
	return "", ErrChallengeInUse
}

// releaseChallenge libera el claim. Con bump suma un intento fallido y al llegar al
// máximo destruye el challenge.
func (s *Service) releaseChallenge(ctx context.Context, key, claimed string, bump bool) {
	var rec pendingRecord
	if err := json.Unmarshal([]byte(claimed), &rec); err != nil {
		_, _ = s.deps.KV.Delete(ctx, key)
		return
	}
	rec.Claim = ""
	if bump {
		rec.Attempts++
		if rec.Attempts >= s.cfg.MaxPendingAttempts {
			_, _ = s.deps.KV.Delete(ctx, key)
			logger.From(ctx).Warn("mfa challenge destroyed after max attempts",
				logger.Component("oauth.complete"), logger.PrincipalID(rec.PrincipalID))
			return
		}
	}
	b, _ := json.Marshal(rec)
	_, _ = s.deps.KV.CompareAndSwap(ctx, key, claimed, string(b), 0)
}
