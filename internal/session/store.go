// Package session guarda el estado de cada refresh token (por jti) en el store compartido.
//
// Un registro vive en session:jti:<jti> con valor "<state>|<principalID>". Los estados solo
// avanzan active → rotated | revoked. Presentar un jti que ya no está activo es reuso y
// dispara la contención: se revocan todas las sesiones del principal y se fija un watermark
// (revoked_at) que invalida también los access tokens emitidos antes. Cada access token lleva
// el jti de su sesión (sid) y deja de validar cuando esa sesión pasa a revoked.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

type State string

const (
	StateActive  State = "active"
	StateRotated State = "rotated"
	StateRevoked State = "revoked"
)

var (
	// ErrRevoked: jti desconocido, expirado o ya no activo.
	ErrRevoked = errors.New("session: revoked")

	// ErrReuseDetected: se presentó un jti rotado o revocado; ya se aplicó la contención.
	ErrReuseDetected = fmt.Errorf("%w: reuse detected", ErrRevoked)

	ErrExists = errors.New("session: jti already exists")
)

type Config struct {
	// WatermarkTTL debe cubrir al menos la vida de un access token.
	WatermarkTTL time.Duration
	Now          func() time.Time
}

type Store struct {
	kv     cache.Client
	cfg    Config
	audit  audit.Sink
	events audit.EventSink
}

// NewStore usa el store primario: sin fallback a memoria, un registro local rompería el single-use.
func NewStore(kv cache.Client, cfg Config, sink audit.Sink, events audit.EventSink) *Store {
	if cfg.WatermarkTTL <= 0 {
		cfg.WatermarkTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{kv: kv, cfg: cfg, audit: sink, events: events}
}

func jtiKey(jti string) string          { return "session:jti:" + jti }
func userKey(principalID string) string { return "session:user:" + principalID }
func markKey(principalID string) string { return "session:revoked_at:" + principalID }

func encode(st State, principalID string) string { return string(st) + "|" + principalID }

func decode(v string) (State, string) {
	st, pid, _ := strings.Cut(v, "|")
	return State(st), pid
}

// Create registra un jti nuevo como activo.
func (s *Store) Create(ctx context.Context, principalID, jti string, ttl time.Duration) error {
	ok, err := s.kv.SetNX(ctx, jtiKey(jti), encode(StateActive, principalID), ttl)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	if !ok {
		return ErrExists
	}
	if err := s.kv.SetAdd(ctx, userKey(principalID), jti, ttl); err != nil {
		return fmt.Errorf("session: index: %w", err)
	}
	return nil
}

// IsActive reporta si el jti existe y está activo.
func (s *Store) IsActive(ctx context.Context, jti string) (bool, error) {
	v, err := s.kv.Get(ctx, jtiKey(jti))
	if cache.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: get: %w", err)
	}
	st, _ := decode(v)
	return st == StateActive, nil
}

// Status devuelve el estado del jti; "" si no existe o expiró.
func (s *Store) Status(ctx context.Context, jti string) (State, error) {
	v, err := s.kv.Get(ctx, jtiKey(jti))
	if cache.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: get: %w", err)
	}
	st, _ := decode(v)
	return st, nil
}

// Rotate marca oldJTI como rotated y crea newJTI. El CAS garantiza un único ganador
// entre requests concurrentes con el mismo refresh.
func (s *Store) Rotate(ctx context.Context, principalID, oldJTI, newJTI string, ttl time.Duration) error {
	log := logger.From(ctx).With(logger.Layer("session"), logger.Op("Rotate"), logger.PrincipalID(principalID))

	swapped, err := s.kv.CompareAndSwap(ctx, jtiKey(oldJTI), encode(StateActive, principalID), encode(StateRotated, principalID), 0)
	if err != nil {
		return fmt.Errorf("session: rotate: %w", err)
	}
	if swapped {
		return s.Create(ctx, principalID, newJTI, ttl)
	}

	v, err := s.kv.Get(ctx, jtiKey(oldJTI))
	if cache.IsNotFound(err) {
		return ErrRevoked
	}
	if err != nil {
		return fmt.Errorf("session: rotate: %w", err)
	}
	st, owner := decode(v)
	if owner != principalID || st == StateActive {
		// Registro de otro principal (no debería pasar con tokens firmados) o carrera con Create.
		return ErrRevoked
	}

	log.Warn("refresh token reuse detected", logger.JTI(oldJTI), logger.String("state", string(st)))
	metrics.SessionReuse.Inc()
	if _, err := s.RevokeAllForUser(ctx, principalID); err != nil {
		log.Error("containment failed", logger.Err(err))
	}
	now := s.cfg.Now().UTC()
	s.audit.Log(ctx, audit.Event{
		Type:        audit.SessionReuse,
		PrincipalID: principalID,
		Reason:      "refresh token presented after " + string(st),
		Metadata:    map[string]any{"jti": oldJTI},
		At:          now,
	})
	s.events.Publish(ctx, audit.SecurityEvent{
		Kind:        audit.SessionReuse,
		PrincipalID: principalID,
		Detail:      map[string]any{"jti": oldJTI, "state": string(st)},
		At:          now,
	})
	return ErrReuseDetected
}

// Revoke pasa un jti activo a revoked. Idempotente.
func (s *Store) Revoke(ctx context.Context, jti string) error {
	v, err := s.kv.Get(ctx, jtiKey(jti))
	if cache.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	st, pid := decode(v)
	if st != StateActive {
		return nil
	}
	if _, err := s.kv.CompareAndSwap(ctx, jtiKey(jti), v, encode(StateRevoked, pid), 0); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// RevokeAllForUser revoca todas las sesiones activas del principal y fija el watermark.
// Devuelve cuántas sesiones pasaron a revoked.
func (s *Store) RevokeAllForUser(ctx context.Context, principalID string) (int, error) {
	now := s.cfg.Now().UTC()
	// El watermark va primero: aunque falle el barrido, los access tokens quedan cortados.
	if err := s.kv.Set(ctx, markKey(principalID), strconv.FormatInt(now.Unix(), 10), s.cfg.WatermarkTTL); err != nil {
		return 0, fmt.Errorf("session: watermark: %w", err)
	}
	jtis, err := s.kv.SetMembers(ctx, userKey(principalID))
	if err != nil {
		return 0, fmt.Errorf("session: list: %w", err)
	}
	// Los rotated también pasan a revoked: cortan los access tokens que los referencian por sid.
	revoked := 0
	dead := encode(StateRevoked, principalID)
	for _, jti := range jtis {
		for _, from := range []State{StateActive, StateRotated} {
			ok, err := s.kv.CompareAndSwap(ctx, jtiKey(jti), encode(from, principalID), dead, 0)
			if err != nil && !cache.IsNotFound(err) {
				return revoked, fmt.Errorf("session: revoke %s: %w", jti, err)
			}
			if ok {
				if from == StateActive {
					revoked++
				}
				break
			}
		}
	}
	s.audit.Log(ctx, audit.Event{
		Type:        audit.SessionsRevoked,
		PrincipalID: principalID,
		Metadata:    map[string]any{"count": revoked},
		At:          now,
	})
	return revoked, nil
}

// RevokedSince devuelve el watermark del principal (zero si no hay).
// Un access token con iat anterior al watermark debe rechazarse.
func (s *Store) RevokedSince(ctx context.Context, principalID string) (time.Time, error) {
	v, err := s.kv.Get(ctx, markKey(principalID))
	if cache.IsNotFound(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("session: watermark: %w", err)
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0).UTC(), nil
}
