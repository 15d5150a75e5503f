package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/cpauth/internal/metrics"
	"github.com/dropDatabas3/cpauth/internal/observability/logger"
)

// fallbackClient usa primary y, ante ErrUnavailable, degrada a secondary (memoria).
// La degradación es best-effort y process-scoped: se loguea como evento de seguridad.
type fallbackClient struct {
	primary   Client
	secondary Client
	name      string
	lastWarn  atomic.Int64
	warnEvery time.Duration
}

// NewFallback arma un cliente con degradación a secondary. name identifica el uso en logs.
func NewFallback(name string, primary, secondary Client) Client {
	return &fallbackClient{
		primary:   primary,
		secondary: secondary,
		name:      name,
		warnEvery: 30 * time.Second,
	}
}

func (f *fallbackClient) degraded(ctx context.Context, op string, err error) bool {
	if !IsUnavailable(err) {
		return false
	}
	metrics.CacheFallback.WithLabelValues(op).Inc()
	now := time.Now().UnixNano()
	last := f.lastWarn.Load()
	if now-last >= int64(f.warnEvery) && f.lastWarn.CompareAndSwap(last, now) {
		logger.From(ctx).Warn("shared store unavailable, using in-process fallback",
			logger.Component("cache"),
			logger.String("store", f.name),
			logger.Op(op),
			logger.Err(err),
		)
	}
	return true
}

func (f *fallbackClient) Get(ctx context.Context, key string) (string, error) {
	v, err := f.primary.Get(ctx, key)
	if f.degraded(ctx, "get", err) {
		return f.secondary.Get(ctx, key)
	}
	return v, err
}

func (f *fallbackClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := f.primary.Set(ctx, key, value, ttl)
	if f.degraded(ctx, "set", err) {
		return f.secondary.Set(ctx, key, value, ttl)
	}
	return err
}

func (f *fallbackClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := f.primary.SetNX(ctx, key, value, ttl)
	if f.degraded(ctx, "setnx", err) {
		return f.secondary.SetNX(ctx, key, value, ttl)
	}
	return ok, err
}

func (f *fallbackClient) Delete(ctx context.Context, key string) (int64, error) {
	n, err := f.primary.Delete(ctx, key)
	if f.degraded(ctx, "delete", err) {
		return f.secondary.Delete(ctx, key)
	}
	return n, err
}

func (f *fallbackClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := f.primary.TTL(ctx, key)
	if f.degraded(ctx, "ttl", err) {
		return f.secondary.TTL(ctx, key)
	}
	return d, err
}

func (f *fallbackClient) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	ok, err := f.primary.CompareAndSwap(ctx, key, old, new, ttl)
	if f.degraded(ctx, "cas", err) {
		return f.secondary.CompareAndSwap(ctx, key, old, new, ttl)
	}
	return ok, err
}

func (f *fallbackClient) WindowAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	n, err := f.primary.WindowAdd(ctx, key, now, window)
	if f.degraded(ctx, "window_add", err) {
		return f.secondary.WindowAdd(ctx, key, now, window)
	}
	return n, err
}

func (f *fallbackClient) WindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	n, err := f.primary.WindowCount(ctx, key, now, window)
	if f.degraded(ctx, "window_count", err) {
		return f.secondary.WindowCount(ctx, key, now, window)
	}
	return n, err
}

func (f *fallbackClient) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	err := f.primary.SetAdd(ctx, key, member, ttl)
	if f.degraded(ctx, "set_add", err) {
		return f.secondary.SetAdd(ctx, key, member, ttl)
	}
	return err
}

func (f *fallbackClient) SetMembers(ctx context.Context, key string) ([]string, error) {
	out, err := f.primary.SetMembers(ctx, key)
	if f.degraded(ctx, "set_members", err) {
		return f.secondary.SetMembers(ctx, key)
	}
	return out, err
}

// Ping reporta el estado del primary; el fallback no oculta la caída a /readyz.
func (f *fallbackClient) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}

// Close cierra solo el secondary: el primary suele estar compartido y lo cierra main.
func (f *fallbackClient) Close() error {
	return f.secondary.Close()
}
