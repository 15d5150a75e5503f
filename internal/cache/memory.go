package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
// Las operaciones compuestas toman mu para ser atómicas dentro del proceso.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
	mu     sync.Mutex
}

// NewMemory crea un cliente en memoria.
func NewMemory(prefix string) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func exp(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

// remaining calcula el TTL restante para re-escribir una key conservando su expiración.
func (m *memoryClient) remaining(k string) time.Duration {
	_, at, ok := m.c.GetWithExpiration(k)
	if !ok || at.IsZero() {
		return gocache.NoExpiration
	}
	d := time.Until(at)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func (m *memoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(m.key(key), value, exp(ttl))
	return nil
}

func (m *memoryClient) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Add falla si la key existe y no expiró.
	if err := m.c.Add(m.key(key), value, exp(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *memoryClient) Delete(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	if _, ok := m.c.Get(k); !ok {
		return 0, nil
	}
	m.c.Delete(k)
	return 1, nil
}

func (m *memoryClient) TTL(_ context.Context, key string) (time.Duration, error) {
	_, at, ok := m.c.GetWithExpiration(m.key(key))
	if !ok {
		return 0, ErrNotFound
	}
	if at.IsZero() {
		return 0, nil
	}
	return time.Until(at), nil
}

func (m *memoryClient) CompareAndSwap(_ context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	cur, ok := m.c.Get(k)
	if !ok {
		return false, nil
	}
	if s, _ := cur.(string); s != old {
		return false, nil
	}
	d := exp(ttl)
	if ttl <= 0 {
		d = m.remaining(k)
	}
	m.c.Set(k, new, d)
	return true, nil
}

func (m *memoryClient) window(k string, now time.Time, window time.Duration) []int64 {
	cutoff := now.Add(-window).UnixNano()
	var out []int64
	if v, ok := m.c.Get(k); ok {
		if ts, ok := v.([]int64); ok {
			for _, t := range ts {
				if t > cutoff {
					out = append(out, t)
				}
			}
		}
	}
	return out
}

func (m *memoryClient) WindowAdd(_ context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	ts := append(m.window(k, now, window), now.UnixNano())
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	m.c.Set(k, ts, exp(window))
	return int64(len(ts)), nil
}

func (m *memoryClient) WindowCount(_ context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	ts := m.window(k, now, window)
	if len(ts) == 0 {
		m.c.Delete(k)
		return 0, nil
	}
	m.c.Set(k, ts, m.remaining(k))
	return int64(len(ts)), nil
}

func (m *memoryClient) SetAdd(_ context.Context, key, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	set := map[string]struct{}{}
	if v, ok := m.c.Get(k); ok {
		if cur, ok := v.(map[string]struct{}); ok {
			for mm := range cur {
				set[mm] = struct{}{}
			}
		}
	}
	set[member] = struct{}{}
	m.c.Set(k, set, exp(ttl))
	return nil
}

func (m *memoryClient) SetMembers(_ context.Context, key string) ([]string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return []string{}, nil
	}
	set, _ := v.(map[string]struct{})
	out := make([]string, 0, len(set))
	for mm := range set {
		out = append(out, mm)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryClient) Ping(context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
