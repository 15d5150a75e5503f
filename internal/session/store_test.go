package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cpauth/internal/audit"
	"github.com/dropDatabas3/cpauth/internal/cache"
)

func newStore(t *testing.T) (*Store, *audit.Recorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rec := audit.NewRecorder()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(cache.NewRedisFromClient(rdb, "cp", time.Second), Config{Now: func() time.Time { return now }}, rec, rec)
	return s, rec, mr
}

func TestRotateHappyPath(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	require.NoError(t, s.Create(ctx, "p1", "j1", time.Hour))
	require.ErrorIs(t, s.Create(ctx, "p1", "j1", time.Hour), ErrExists)

	require.NoError(t, s.Rotate(ctx, "p1", "j1", "j2", time.Hour))

	active, err := s.IsActive(ctx, "j1")
	require.NoError(t, err)
	require.False(t, active)
	active, err = s.IsActive(ctx, "j2")
	require.NoError(t, err)
	require.True(t, active)
}

func TestReuseTriggersContainment(t *testing.T) {
	ctx := context.Background()
	s, rec, _ := newStore(t)

	require.NoError(t, s.Create(ctx, "p1", "j1", time.Hour))
	require.NoError(t, s.Create(ctx, "p1", "other-device", time.Hour))
	require.NoError(t, s.Rotate(ctx, "p1", "j1", "j2", time.Hour))

	// el atacante presenta el refresh viejo
	err := s.Rotate(ctx, "p1", "j1", "j3", time.Hour)
	require.ErrorIs(t, err, ErrReuseDetected)
	require.ErrorIs(t, err, ErrRevoked)

	for _, jti := range []string{"j2", "other-device", "j3"} {
		active, err := s.IsActive(ctx, jti)
		require.NoError(t, err)
		require.False(t, active, jti)
	}

	// la víctima tampoco puede seguir rotando
	require.ErrorIs(t, s.Rotate(ctx, "p1", "j2", "j4", time.Hour), ErrReuseDetected)

	mark, err := s.RevokedSince(ctx, "p1")
	require.NoError(t, err)
	require.False(t, mark.IsZero())

	require.True(t, rec.Has(audit.SessionReuse))
	require.True(t, rec.Has(audit.SessionsRevoked))
	require.NotEmpty(t, rec.SecurityEvents())
	require.Equal(t, audit.SessionReuse, rec.SecurityEvents()[0].Kind)
}

func TestRevokedJTIIsReuse(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	require.NoError(t, s.Create(ctx, "p1", "j1", time.Hour))
	require.NoError(t, s.Revoke(ctx, "j1"))
	require.NoError(t, s.Revoke(ctx, "j1"))

	require.ErrorIs(t, s.Rotate(ctx, "p1", "j1", "j2", time.Hour), ErrReuseDetected)
}

func TestUnknownOrExpiredJTI(t *testing.T) {
	ctx := context.Background()
	s, rec, mr := newStore(t)

	err := s.Rotate(ctx, "p1", "nope", "j2", time.Hour)
	require.ErrorIs(t, err, ErrRevoked)
	require.False(t, errors.Is(err, ErrReuseDetected))

	require.NoError(t, s.Create(ctx, "p1", "j1", time.Minute))
	mr.FastForward(2 * time.Minute)
	err = s.Rotate(ctx, "p1", "j1", "j2", time.Hour)
	require.ErrorIs(t, err, ErrRevoked)
	require.False(t, errors.Is(err, ErrReuseDetected))
	require.False(t, rec.Has(audit.SessionReuse))
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	require.NoError(t, s.Create(ctx, "p1", "j1", time.Hour))

	const n = 12
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- s.Rotate(ctx, "p1", "j1", "next-"+string(rune('a'+i)), time.Hour)
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, ErrRevoked)
	}
	require.Equal(t, 1, wins)
}

func TestStoreDownFailsClosed(t *testing.T) {
	ctx := context.Background()
	s, _, mr := newStore(t)
	require.NoError(t, s.Create(ctx, "p1", "j1", time.Hour))
	mr.Close()

	err := s.Rotate(ctx, "p1", "j1", "j2", time.Hour)
	require.Error(t, err)
	require.True(t, cache.IsUnavailable(err))

	_, err = s.IsActive(ctx, "j1")
	require.True(t, cache.IsUnavailable(err))
}

func TestRevokeAllCountsOnlyActive(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	require.NoError(t, s.Create(ctx, "p1", "a", time.Hour))
	require.NoError(t, s.Create(ctx, "p1", "b", time.Hour))
	require.NoError(t, s.Revoke(ctx, "b"))
	require.NoError(t, s.Create(ctx, "p2", "c", time.Hour))

	n, err := s.RevokeAllForUser(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	active, err := s.IsActive(ctx, "c")
	require.NoError(t, err)
	require.True(t, active)

	mark, err := s.RevokedSince(ctx, "p2")
	require.NoError(t, err)
	require.True(t, mark.IsZero())
}

func TestRevokeAllSweepsRotatedEntries(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)
	require.NoError(t, s.Create(ctx, "p1", "a", time.Hour))
	require.NoError(t, s.Rotate(ctx, "p1", "a", "b", time.Hour))

	st, err := s.Status(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, StateRotated, st)

	n, err := s.RevokeAllForUser(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	for _, jti := range []string{"a", "b"} {
		st, err := s.Status(ctx, jti)
		require.NoError(t, err)
		require.Equal(t, StateRevoked, st, jti)
	}

	st, err = s.Status(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, st)
}
