package rate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/cache"
	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// ThrottleConfig umbrales del throttle de login.
type ThrottleConfig struct {
	Scope             string
	Window            time.Duration
	CaptchaThreshold  int
	BackoffThreshold  int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	SoftLockThreshold int
	SoftLockTTL       time.Duration

	Now func() time.Time
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Scope:             "platform",
		Window:            15 * time.Minute,
		CaptchaThreshold:  3,
		BackoffThreshold:  5,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		SoftLockThreshold: 20,
		SoftLockTTL:       5 * time.Minute,
	}
}

// Decision es el resultado de registrar una falla.
type Decision struct {
	Failures   int64
	Delay      time.Duration
	Locked     bool
	RetryAfter time.Duration
}

// Throttle cuenta fallas de login en ventanas deslizantes por identidad y por (identidad, IP).
// Si el store compartido no responde, falla abierto: no demora ni bloquea, pero lo loguea
// como degradación de seguridad.
type Throttle struct {
	store  cache.Client
	cfg    ThrottleConfig
	events audit.EventSink
}

func NewThrottle(store cache.Client, cfg ThrottleConfig, events audit.EventSink) *Throttle {
	def := DefaultThrottleConfig()
	if cfg.Scope == "" {
		cfg.Scope = def.Scope
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CaptchaThreshold <= 0 {
		cfg.CaptchaThreshold = def.CaptchaThreshold
	}
	if cfg.BackoffThreshold <= 0 {
		cfg.BackoffThreshold = def.BackoffThreshold
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.SoftLockThreshold <= 0 {
		cfg.SoftLockThreshold = def.SoftLockThreshold
	}
	if cfg.SoftLockTTL <= 0 {
		cfg.SoftLockTTL = def.SoftLockTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Throttle{store: store, cfg: cfg, events: events}
}

func normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func (t *Throttle) key(kind, identity string) string {
	return "throttle:" + t.cfg.Scope + ":" + kind + ":" + identity
}

func (t *Throttle) pair(kind, identity, ip string) string {
	return t.key(kind, identity+"|"+ip)
}

func (t *Throttle) degraded(ctx context.Context, op string, err error) {
	metrics.ThrottleDegraded.Inc()
	logger.From(ctx).Warn("login throttle degraded, failing open",
		logger.Component("throttle"),
		logger.Op(op),
		logger.Err(err),
	)
}

// Delay calcula min(max, base·2^(failures−threshold)) a partir del umbral de backoff.
func (t *Throttle) Delay(failures int64) time.Duration {
	over := failures - int64(t.cfg.BackoffThreshold)
	if over < 0 {
		return 0
	}
	if over > 30 {
		return t.cfg.MaxDelay
	}
	d := t.cfg.BaseDelay * time.Duration(int64(1)<<over)
	if d <= 0 || d > t.cfg.MaxDelay {
		return t.cfg.MaxDelay
	}
	return d
}

// RecordFailure poda, agrega la falla y decide demora / soft lock.
func (t *Throttle) RecordFailure(ctx context.Context, identity, ip string) Decision {
	id := normalize(identity)
	now := t.cfg.Now()

	idCount, err := t.store.WindowAdd(ctx, t.key("id", id), now, t.cfg.Window)
	if err != nil {
		t.degraded(ctx, "record_failure", err)
		return Decision{}
	}
	pairCount, err := t.store.WindowAdd(ctx, t.pair("pair", id, ip), now, t.cfg.Window)
	if err != nil {
		t.degraded(ctx, "record_failure", err)
		return Decision{Failures: idCount}
	}

	if idCount >= int64(t.cfg.SoftLockThreshold) {
		return t.lock(ctx, id, ip, now, idCount)
	}

	d := Decision{Failures: pairCount, Delay: t.Delay(pairCount)}
	if d.Delay > 0 {
		d.RetryAfter = d.Delay
		until := strconv.FormatInt(now.Add(d.Delay).UnixMilli(), 10)
		if err := t.store.Set(ctx, t.pair("next", id, ip), until, d.Delay); err != nil {
			t.degraded(ctx, "record_backoff", err)
		}
	}
	return d
}

func (t *Throttle) lock(ctx context.Context, id, ip string, now time.Time, failures int64) Decision {
	until := strconv.FormatInt(now.Add(t.cfg.SoftLockTTL).UnixMilli(), 10)
	if err := t.store.Set(ctx, t.key("lock", id), until, t.cfg.SoftLockTTL); err != nil {
		t.degraded(ctx, "soft_lock", err)
		return Decision{Failures: failures}
	}
	// Al expirar el lock los contadores arrancan de cero.
	_, _ = t.store.Delete(ctx, t.key("id", id))
	_, _ = t.store.Delete(ctx, t.pair("pair", id, ip))
	_, _ = t.store.Delete(ctx, t.pair("next", id, ip))

	logger.From(ctx).Warn("soft lock applied",
		logger.Component("throttle"), logger.Identity(id), logger.ClientIP(ip), logger.Int("failures", int(failures)))
	if t.events != nil {
		t.events.Publish(ctx, audit.SecurityEvent{
			Kind:     audit.SoftLockApplied,
			Identity: id,
			IP:       ip,
			Detail:   map[string]any{"failures": failures, "ttl_seconds": int(t.cfg.SoftLockTTL.Seconds())},
			At:       now,
		})
	}
	return Decision{Failures: failures, Locked: true, RetryAfter: t.cfg.SoftLockTTL}
}

// NeedsCaptcha es de solo lectura: true si cualquiera de los dos contadores alcanzó el umbral.
func (t *Throttle) NeedsCaptcha(ctx context.Context, identity, ip string) bool {
	id := normalize(identity)
	now := t.cfg.Now()
	idCount, err := t.store.WindowCount(ctx, t.key("id", id), now, t.cfg.Window)
	if err != nil {
		t.degraded(ctx, "needs_captcha", err)
		return false
	}
	pairCount, err := t.store.WindowCount(ctx, t.pair("pair", id, ip), now, t.cfg.Window)
	if err != nil {
		t.degraded(ctx, "needs_captcha", err)
		return false
	}
	th := int64(t.cfg.CaptchaThreshold)
	return idCount >= th || pairCount >= th
}

// CheckSoftLock indica si la identidad está bloqueada y por cuánto tiempo más.
func (t *Throttle) CheckSoftLock(ctx context.Context, identity string) (bool, time.Duration) {
	return t.until(ctx, "check_soft_lock", t.key("lock", normalize(identity)))
}

// CheckBackoff devuelve la espera pendiente para (identidad, IP), 0 si puede intentar.
func (t *Throttle) CheckBackoff(ctx context.Context, identity, ip string) time.Duration {
	_, d := t.until(ctx, "check_backoff", t.pair("next", normalize(identity), ip))
	return d
}

func (t *Throttle) until(ctx context.Context, op, key string) (bool, time.Duration) {
	v, err := t.store.Get(ctx, key)
	if cache.IsNotFound(err) {
		return false, 0
	}
	if err != nil {
		t.degraded(ctx, op, err)
		return false, 0
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, 0
	}
	left := time.UnixMilli(ms).Sub(t.cfg.Now())
	if left <= 0 {
		_, _ = t.store.Delete(ctx, key)
		return false, 0
	}
	return true, left
}

// ClearFailures resetea los contadores tras un login exitoso. No levanta un soft lock.
func (t *Throttle) ClearFailures(ctx context.Context, identity, ip string) {
	id := normalize(identity)
	for _, k := range []string{t.key("id", id), t.pair("pair", id, ip), t.pair("next", id, ip)} {
		if _, err := t.store.Delete(ctx, k); err != nil {
			t.degraded(ctx, "clear_failures", err)
			return
		}
	}
}
