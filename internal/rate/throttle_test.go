package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/cache"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newThrottle(t *testing.T, store cache.Client) (*Throttle, *clock, *audit.Recorder) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	rec := audit.NewRecorder()
	cfg := DefaultThrottleConfig()
	cfg.Now = clk.Now
	return NewThrottle(store, cfg, rec), clk, rec
}

func TestThrottle_Monotonicity(t *testing.T) {
	ctx := context.Background()
	th, clk, rec := newThrottle(t, cache.NewMemory(""))
	const who, ip = "Admin@Example.com", "203.0.113.7"

	for i := 1; i <= 2; i++ {
		d := th.RecordFailure(ctx, who, ip)
		require.False(t, d.Locked)
		require.Zero(t, d.Delay)
		require.False(t, th.NeedsCaptcha(ctx, who, ip), "failure %d", i)
	}

	th.RecordFailure(ctx, who, ip)
	require.True(t, th.NeedsCaptcha(ctx, who, ip))
	// la identidad se normaliza
	require.True(t, th.NeedsCaptcha(ctx, "admin@example.com", ip))

	th.RecordFailure(ctx, who, ip)
	d := th.RecordFailure(ctx, who, ip) // 5
	require.Equal(t, time.Second, d.Delay)
	require.Equal(t, time.Second, th.CheckBackoff(ctx, who, ip))

	var last Decision
	for i := 6; i <= 19; i++ {
		last = th.RecordFailure(ctx, who, ip)
		require.False(t, last.Locked)
		require.GreaterOrEqual(t, last.Delay, d.Delay)
		d = last
	}
	require.Equal(t, 30*time.Second, last.Delay)

	d = th.RecordFailure(ctx, who, ip) // 20
	require.True(t, d.Locked)
	require.Equal(t, 5*time.Minute, d.RetryAfter)
	require.Len(t, rec.SecurityEvents(), 1)
	require.Equal(t, audit.SoftLockApplied, rec.SecurityEvents()[0].Kind)

	locked, retry := th.CheckSoftLock(ctx, who)
	require.True(t, locked)
	require.Greater(t, retry, time.Duration(0))

	clk.Advance(4 * time.Minute)
	locked, retry = th.CheckSoftLock(ctx, who)
	require.True(t, locked)
	require.Equal(t, time.Minute, retry)

	clk.Advance(time.Minute + time.Second)
	locked, _ = th.CheckSoftLock(ctx, who)
	require.False(t, locked)
	require.False(t, th.NeedsCaptcha(ctx, who, ip))

	d = th.RecordFailure(ctx, who, ip)
	require.EqualValues(t, 1, d.Failures)
	require.False(t, d.Locked)
}

func TestThrottle_WindowSlides(t *testing.T) {
	ctx := context.Background()
	th, clk, _ := newThrottle(t, cache.NewMemory(""))

	for i := 0; i < 3; i++ {
		th.RecordFailure(ctx, "a@x.io", "10.0.0.1")
	}
	require.True(t, th.NeedsCaptcha(ctx, "a@x.io", "10.0.0.1"))

	clk.Advance(16 * time.Minute)
	require.False(t, th.NeedsCaptcha(ctx, "a@x.io", "10.0.0.1"))
}

func TestThrottle_IdentityWideCaptchaAcrossIPs(t *testing.T) {
	ctx := context.Background()
	th, _, _ := newThrottle(t, cache.NewMemory(""))

	th.RecordFailure(ctx, "a@x.io", "10.0.0.1")
	th.RecordFailure(ctx, "a@x.io", "10.0.0.2")
	th.RecordFailure(ctx, "a@x.io", "10.0.0.3")

	require.True(t, th.NeedsCaptcha(ctx, "a@x.io", "10.0.0.9"))
	require.Zero(t, th.CheckBackoff(ctx, "a@x.io", "10.0.0.9"))
}

func TestThrottle_ClearFailures(t *testing.T) {
	ctx := context.Background()
	th, _, _ := newThrottle(t, cache.NewMemory(""))
	for i := 0; i < 6; i++ {
		th.RecordFailure(ctx, "a@x.io", "10.0.0.1")
	}
	th.ClearFailures(ctx, "a@x.io", "10.0.0.1")
	require.False(t, th.NeedsCaptcha(ctx, "a@x.io", "10.0.0.1"))
	require.Zero(t, th.CheckBackoff(ctx, "a@x.io", "10.0.0.1"))
}

func TestThrottle_FailsOpenWhenStoreDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	th, _, _ := newThrottle(t, cache.NewRedisFromClient(rdb, "", 200*time.Millisecond))

	th.RecordFailure(ctx, "a@x.io", "10.0.0.1")
	mr.Close()

	d := th.RecordFailure(ctx, "a@x.io", "10.0.0.1")
	require.Equal(t, Decision{}, d)
	require.False(t, th.NeedsCaptcha(ctx, "a@x.io", "10.0.0.1"))
	locked, _ := th.CheckSoftLock(ctx, "a@x.io")
	require.False(t, locked)
}

func TestDelayFormula(t *testing.T) {
	th := NewThrottle(cache.NewMemory(""), DefaultThrottleConfig(), nil)
	require.Zero(t, th.Delay(4))
	require.Equal(t, 1*time.Second, th.Delay(5))
	require.Equal(t, 2*time.Second, th.Delay(6))
	require.Equal(t, 16*time.Second, th.Delay(9))
	require.Equal(t, 30*time.Second, th.Delay(10))
	require.Equal(t, 30*time.Second, th.Delay(500))
}

func TestKeyedLimiter(t *testing.T) {
	ctx := context.Background()
	l, err := NewKeyedLimiter(1, 2, 100)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, _ := l.Allow(ctx, "1.1.1.1")
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))

	res, _ = l.Allow(ctx, "2.2.2.2")
	require.True(t, res.Allowed)

	now = now.Add(time.Second)
	res, _ = l.Allow(ctx, "1.1.1.1")
	require.True(t, res.Allowed)
}
