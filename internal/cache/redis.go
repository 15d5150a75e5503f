package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 500 * time.Millisecond

// casScript: KEYS[1]=key ARGV[1]=old ARGV[2]=new ARGV[3]=ttl_ms (<=0 conserva el TTL)
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or cur ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl <= 0 then
  ttl = redis.call('PTTL', KEYS[1])
end
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// redisClient implementa Client usando Redis.
type redisClient struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

// NewRedis crea el cliente sin conectarse; el caller decide qué hacer si Ping falla.
func NewRedis(cfg Config) *redisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return NewRedisFromClient(rdb, cfg.Prefix, cfg.OpTimeout)
}

// NewRedisFromClient envuelve un *redis.Client existente (tests con miniredis).
func NewRedisFromClient(rdb *redis.Client, prefix string, opTimeout time.Duration) *redisClient {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &redisClient{client: rdb, prefix: prefix, opTimeout: opTimeout}
}

func (c *redisClient) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *redisClient) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// wrap traduce errores de go-redis: Nil → ErrNotFound, cancelación del caller se
// propaga tal cual, todo lo demás es ErrUnavailable.
func wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (c *redisClient) Get(ctx context.Context, key string) (string, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	v, err := c.client.Get(octx, c.key(key)).Result()
	if err != nil {
		return "", wrap(ctx, err)
	}
	return v, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	return wrap(ctx, c.client.Set(octx, c.key(key), value, ttl).Err())
}

func (c *redisClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	ok, err := c.client.SetNX(octx, c.key(key), value, ttl).Result()
	if err != nil {
		return false, wrap(ctx, err)
	}
	return ok, nil
}

func (c *redisClient) Delete(ctx context.Context, key string) (int64, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	n, err := c.client.Del(octx, c.key(key)).Result()
	if err != nil {
		return 0, wrap(ctx, err)
	}
	return n, nil
}

func (c *redisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	d, err := c.client.PTTL(octx, c.key(key)).Result()
	if err != nil {
		return 0, wrap(ctx, err)
	}
	switch {
	case d == -2*time.Millisecond || d == -2:
		return 0, ErrNotFound
	case d < 0:
		return 0, nil
	}
	return d, nil
}

func (c *redisClient) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	n, err := casScript.Run(octx, c.client, []string{c.key(key)}, old, new, ttl.Milliseconds()).Int()
	if err != nil {
		return false, wrap(ctx, err)
	}
	return n == 1, nil
}

func (c *redisClient) WindowAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	k := c.key(key)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var card *redis.IntCmd
	_, err := c.client.TxPipelined(octx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(octx, k, "-inf", cutoff)
		p.ZAdd(octx, k, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
		card = p.ZCard(octx, k)
		p.PExpire(octx, k, window)
		return nil
	})
	if err != nil {
		return 0, wrap(ctx, err)
	}
	return card.Val(), nil
}

func (c *redisClient) WindowCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	k := c.key(key)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	var card *redis.IntCmd
	_, err := c.client.TxPipelined(octx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(octx, k, "-inf", cutoff)
		card = p.ZCard(octx, k)
		return nil
	})
	if err != nil {
		return 0, wrap(ctx, err)
	}
	return card.Val(), nil
}

func (c *redisClient) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	k := c.key(key)
	_, err := c.client.TxPipelined(octx, func(p redis.Pipeliner) error {
		p.SAdd(octx, k, member)
		if ttl > 0 {
			p.PExpire(octx, k, ttl)
		}
		return nil
	})
	return wrap(ctx, err)
}

func (c *redisClient) SetMembers(ctx context.Context, key string) ([]string, error) {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	out, err := c.client.SMembers(octx, c.key(key)).Result()
	if err != nil {
		return nil, wrap(ctx, err)
	}
	return out, nil
}

func (c *redisClient) Ping(ctx context.Context) error {
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	return wrap(ctx, c.client.Ping(octx).Err())
}

func (c *redisClient) Close() error {
	return c.client.Close()
}
