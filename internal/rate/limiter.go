package rate

import (
	"context"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	xrate "golang.org/x/time/rate"
)

type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// KeyedLimiter: token bucket por key (IP) en proceso. La tabla está acotada por un LRU
// para que una ráfaga de IPs distintas no crezca la memoria sin límite.
type KeyedLimiter struct {
	limit xrate.Limit
	burst int
	table *lru.Cache[string, *xrate.Limiter]
	now   func() time.Time
}

// NewKeyedLimiter crea un limiter de rps requests/seg con ráfaga burst, para hasta size keys.
func NewKeyedLimiter(rps float64, burst, size int) (*KeyedLimiter, error) {
	if size <= 0 {
		size = 10000
	}
	table, err := lru.New[string, *xrate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &KeyedLimiter{limit: xrate.Limit(rps), burst: burst, table: table, now: time.Now}, nil
}

func (l *KeyedLimiter) get(key string) *xrate.Limiter {
	if lim, ok := l.table.Get(key); ok {
		return lim
	}
	lim := xrate.NewLimiter(l.limit, l.burst)
	// PeekOrAdd evita pisar un limiter creado en paralelo por otro request.
	if prev, ok, _ := l.table.PeekOrAdd(key, lim); ok {
		return prev
	}
	return lim
}

func (l *KeyedLimiter) Allow(_ context.Context, key string) (Result, error) {
	lim := l.get(key)
	now := l.now()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Result{Allowed: false, RetryAfter: time.Second}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, RetryAfter: d}, nil
	}
	remaining := int64(math.Floor(lim.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining}, nil
}
