// Package audit define los puertos de salida para auditoría y eventos de seguridad.
//
// Sink recibe eventos de auditoría (write-only, el almacenamiento es externo).
// EventSink recibe eventos de seguridad para fan-out (alertas, SIEM); se invoca de forma
// síncrona antes de responder al cliente.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// Tipos de evento.
const (
	LoginSucceeded      = "auth.login_succeeded"
	LoginFailed         = "auth.login_failed"
	IPDenied            = "auth.ip_denied"
	MFAFailed           = "mfa.verification_failed"
	MFAEnabled          = "mfa.enabled"
	MFADisabled         = "mfa.disabled"
	RecoveryCodeUsed    = "mfa.recovery_code_used"
	RecoveryRegenerated = "mfa.recovery_codes_regenerated"
	SessionReuse        = "session.reuse_detected"
	SessionsRevoked     = "session.revoked_all"
	PasswordChanged     = "auth.password_changed"
	OAuthNonceReplay    = "oauth.nonce_replay"
	OAuthMFAPending     = "oauth.mfa_pending"
	OAuthProvisioned    = "oauth.principal_provisioned"
	OAuthLogin          = "oauth.login_succeeded"
	WebhookHashMismatch = "webhook.replay_hash_mismatch"
	WebhookBadSignature = "webhook.signature_invalid"
	SoftLockApplied     = "brute_force.soft_lock"
)

// Event es un registro de auditoría.
type Event struct {
	Type        string
	PrincipalID string
	TenantID    string
	IP          string
	Reason      string
	Metadata    map[string]any
	At          time.Time
}

// Sink es el puerto de auditoría.
type Sink interface {
	Log(ctx context.Context, e Event)
}

// SecurityEvent se publica ante detecciones (fuerza bruta, reuso de sesión, replay).
type SecurityEvent struct {
	Kind        string
	Identity    string
	PrincipalID string
	IP          string
	Detail      map[string]any
	At          time.Time
}

// EventSink es el puerto de publicación de eventos de seguridad.
type EventSink interface {
	Publish(ctx context.Context, e SecurityEvent)
}

// LogSink escribe auditoría y eventos como logs estructurados.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = logger.Named("audit")
	}
	return &LogSink{log: l}
}

func (s *LogSink) Log(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.IP == "" {
		e.IP = ClientIP(ctx)
	}
	s.log.Info("audit",
		logger.String("event", e.Type),
		logger.PrincipalID(e.PrincipalID),
		logger.TenantID(e.TenantID),
		logger.ClientIP(e.IP),
		logger.String("reason", e.Reason),
		logger.Any("meta", e.Metadata),
		zap.Time("ts", e.At),
		logger.RequestID(requestID(ctx)),
	)
}

func (s *LogSink) Publish(ctx context.Context, e SecurityEvent) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.IP == "" {
		e.IP = ClientIP(ctx)
	}
	s.log.Warn("security_event",
		logger.String("kind", e.Kind),
		logger.Identity(e.Identity),
		logger.PrincipalID(e.PrincipalID),
		logger.ClientIP(e.IP),
		logger.Any("detail", e.Detail),
		zap.Time("ts", e.At),
		logger.RequestID(requestID(ctx)),
	)
}

type (
	requestIDKey struct{}
	clientIPKey  struct{}
)

// WithRequestID deja el request id disponible para los sinks.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

// WithClientIP deja la IP del cliente para eventos generados en capas internas.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP devuelve la IP registrada en ctx o "".
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(clientIPKey{}).(string)
	return s
}

// Recorder guarda eventos en memoria. Implementa Sink y EventSink (tests / dev).
type Recorder struct {
	mu       sync.Mutex
	events   []Event
	security []SecurityEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Log(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Publish(_ context.Context, e SecurityEvent) {
	r.mu.Lock()
	r.security = append(r.security, e)
	r.mu.Unlock()
}

// Events devuelve una copia de los eventos de auditoría.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// SecurityEvents devuelve una copia de los eventos de seguridad.
func (r *Recorder) SecurityEvents() []SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SecurityEvent(nil), r.security...)
}

// Has indica si se registró algún evento de auditoría del tipo dado.
func (r *Recorder) Has(eventType string) bool {
	for _, e := range r.Events() {
		if e.Type == eventType {
			return true
		}
	}
	return false
}
