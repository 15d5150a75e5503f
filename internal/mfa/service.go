// Package mfa implementa el ciclo de vida TOTP, los recovery codes y el marcador
// de reautenticación reciente que exigen las operaciones sensibles.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/email"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
	"github.com/dropDatabas3/cpauth/internal/principal"
	"github.com/dropDatabas3/cpauth/internal/security/secretbox"
	tokens "github.com/dropDatabas3/cpauth/internal/security/token"
	"github.com/dropDatabas3/cpauth/internal/security/totp"
)

var (
	ErrInvalidCode    = errors.New("mfa: invalid code")
	ErrNotEnabled     = errors.New("mfa: not enabled")
	ErrAlreadyEnabled = errors.New("mfa: already enabled")
	ErrNotSetup       = errors.New("mfa: setup required")
	ErrReauthRequired = errors.New("mfa: recent verification required")
)

// Method indica con qué se verificó el segundo factor.
type Method string

const (
	MethodTOTP     Method = "totp"
	MethodRecovery Method = "recovery"
)

const recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // sin I, O, 0, 1

type Config struct {
	Issuer        string
	RecoveryCount int
	RecoveryLen   int
	FreshnessTTL  time.Duration
	Skew          int
	Now           func() time.Time
}

func (c *Config) defaults() {
	if c.Issuer == "" {
		c.Issuer = "Control Plane"
	}
	if c.RecoveryCount <= 0 {
		c.RecoveryCount = 10
	}
	if c.RecoveryLen <= 0 {
		c.RecoveryLen = 10
	}
	if c.FreshnessTTL <= 0 {
		c.FreshnessTTL = 5 * time.Minute
	}
	if c.Skew < 0 {
		c.Skew = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type Service struct {
	dir    principal.Directory
	box    *secretbox.Box
	kv     cache.Client
	cfg    Config
	audit  audit.Sink
	notify email.Notifier
}

// NewService: kv debería ser el cliente con fallback a memoria (freshness y anti-replay
// siguen funcionando, por proceso, si Redis cae).
func NewService(dir principal.Directory, box *secretbox.Box, kv cache.Client, cfg Config, sink audit.Sink, notify email.Notifier) *Service {
	cfg.defaults()
	if notify == nil {
		notify = email.Discard{}
	}
	return &Service{dir: dir, box: box, kv: kv, cfg: cfg, audit: sink, notify: notify}
}

// Setup genera un secreto nuevo y lo guarda cifrado. No tiene efecto hasta Enable.
func (s *Service) Setup(ctx context.Context, principalID string) (totp.Key, error) {
	p, err := s.dir.ByID(ctx, principalID)
	if err != nil {
		return totp.Key{}, err
	}
	if p.MFAEnabled {
		return totp.Key{}, ErrAlreadyEnabled
	}
	key, err := totp.Generate(s.cfg.Issuer, p.Email)
	if err != nil {
		return totp.Key{}, fmt.Errorf("mfa: generate: %w", err)
	}
	enc, err := s.box.EncryptString(key.Secret)
	if err != nil {
		return totp.Key{}, fmt.Errorf("mfa: encrypt secret: %w", err)
	}
	if err := s.dir.SetTOTPSecret(ctx, principalID, enc); err != nil {
		return totp.Key{}, err
	}
	return key, nil
}

// Enable prueba posesión con un código y emite el set de recovery codes (en claro, una sola vez).
func (s *Service) Enable(ctx context.Context, principalID, code string) ([]string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("mfa.Enable"), logger.PrincipalID(principalID))

	p, err := s.dir.ByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.MFAEnabled {
		return nil, ErrAlreadyEnabled
	}
	if p.TOTPSecretEnc == "" {
		return nil, ErrNotSetup
	}
	if err := s.verifyTOTP(ctx, p, code); err != nil {
		s.failed(ctx, p, "enable")
		return nil, err
	}
	plain, hashes, err := s.mintRecoveryCodes()
	if err != nil {
		return nil, err
	}
	if err := s.dir.EnableMFA(ctx, principalID, hashes); err != nil {
		return nil, err
	}
	if err := s.MarkFresh(ctx, principalID); err != nil {
		log.Warn("mark fresh failed", logger.Err(err))
	}
	s.audit.Log(ctx, audit.Event{Type: audit.MFAEnabled, PrincipalID: principalID, At: s.cfg.Now().UTC()})
	s.notify.Send(ctx, email.TemplateMFAEnabled, p.Email, email.Vars{IP: audit.ClientIP(ctx)})
	log.Info("mfa enabled")
	return plain, nil
}

// Disable requiere un código válido (TOTP o recovery).
func (s *Service) Disable(ctx context.Context, principalID, code string) error {
	p, err := s.dir.ByID(ctx, principalID)
	if err != nil {
		return err
	}
	if _, err := s.Verify(ctx, p, code); err != nil {
		return err
	}
	if err := s.dir.DisableMFA(ctx, principalID); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{Type: audit.MFADisabled, PrincipalID: principalID, At: s.cfg.Now().UTC()})
	s.notify.Send(ctx, email.TemplateMFADisabled, p.Email, email.Vars{IP: audit.ClientIP(ctx)})
	return nil
}

// Verify prueba primero como recovery code (consumo atómico) y después como TOTP.
// Un éxito deja marcada la reautenticación reciente.
func (s *Service) Verify(ctx context.Context, p *principal.Principal, code string) (Method, error) {
	if !p.MFAEnabled {
		return "", ErrNotEnabled
	}
	code = strings.TrimSpace(code)
	if code == "" {
		s.failed(ctx, p, "empty")
		return "", ErrInvalidCode
	}

	used, err := s.dir.ConsumeRecoveryCode(ctx, p.ID, tokens.SHA256Base64URL(normalizeRecovery(code)))
	if err != nil {
		return "", fmt.Errorf("mfa: consume recovery: %w", err)
	}
	method := MethodRecovery
	if used {
		s.audit.Log(ctx, audit.Event{Type: audit.RecoveryCodeUsed, PrincipalID: p.ID, At: s.cfg.Now().UTC()})
	} else {
		if err := s.verifyTOTP(ctx, p, code); err != nil {
			if errors.Is(err, ErrInvalidCode) {
				s.failed(ctx, p, "verify")
			}
			return "", err
		}
		method = MethodTOTP
	}
	if err := s.MarkFresh(ctx, p.ID); err != nil {
		logger.From(ctx).Warn("mark fresh failed", logger.Component("mfa"), logger.Err(err))
	}
	return method, nil
}

// Reauth verifica un código para habilitar operaciones sensibles.
func (s *Service) Reauth(ctx context.Context, principalID, code string) error {
	p, err := s.dir.ByID(ctx, principalID)
	if err != nil {
		return err
	}
	_, err = s.Verify(ctx, p, code)
	return err
}

// RegenerateRecoveryCodes invalida el set anterior. Requiere un código válido.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, principalID, code string) ([]string, error) {
	p, err := s.dir.ByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Verify(ctx, p, code); err != nil {
		return nil, err
	}
	plain, hashes, err := s.mintRecoveryCodes()
	if err != nil {
		return nil, err
	}
	if err := s.dir.ReplaceRecoveryCodes(ctx, principalID, hashes); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{Type: audit.RecoveryRegenerated, PrincipalID: principalID, At: s.cfg.Now().UTC()})
	return plain, nil
}

func (s *Service) verifyTOTP(ctx context.Context, p *principal.Principal, code string) error {
	if p.TOTPSecretEnc == "" {
		return ErrNotSetup
	}
	secret, err := s.box.DecryptString(p.TOTPSecretEnc)
	if err != nil {
		return fmt.Errorf("mfa: decrypt secret: %w", err)
	}
	counter, ok := totp.Match(secret, code, s.cfg.Now(), s.cfg.Skew)
	if !ok {
		return ErrInvalidCode
	}
	// Un time-step aceptado no se vuelve a aceptar.
	ttl := time.Duration((2*s.cfg.Skew+2)*totp.Period) * time.Second
	key := "mfa:totp:used:" + p.ID + ":" + strconv.FormatInt(counter, 10)
	first, err := s.kv.SetNX(ctx, key, "1", ttl)
	if err != nil {
		return fmt.Errorf("mfa: replay guard: %w", err)
	}
	if !first {
		return ErrInvalidCode
	}
	return nil
}

func (s *Service) failed(ctx context.Context, p *principal.Principal, stage string) {
	s.audit.Log(ctx, audit.Event{
		Type:        audit.MFAFailed,
		PrincipalID: p.ID,
		Reason:      stage,
		At:          s.cfg.Now().UTC(),
	})
}

func (s *Service) mintRecoveryCodes() (plain, hashes []string, err error) {
	plain = make([]string, s.cfg.RecoveryCount)
	hashes = make([]string, s.cfg.RecoveryCount)
	for i := range plain {
		c, err := tokens.RandomString(recoveryAlphabet, s.cfg.RecoveryLen)
		if err != nil {
			return nil, nil, err
		}
		plain[i] = c
		hashes[i] = tokens.SHA256Base64URL(c)
	}
	return plain, hashes, nil
}

func normalizeRecovery(code string) string {
	code = strings.ToUpper(code)
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}
