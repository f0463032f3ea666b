package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/kirinyoku/cinema-es/internal/event"
)

// luaSetIfGeneration stores a row only if no invalidation happened since the
// loader read the generation.
// KEYS[1] = entity key
// KEYS[2] = generation key
// ARGV[1] = generation seen before loading
// ARGV[2] = encoded row
// ARGV[3] = ttl_ms
const luaSetIfGeneration = `
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// Cache holds read rows by aggregate type and id. Projections call
// Invalidate after they commit; Fetch never writes back a row that was
// loaded before the latest invalidation.
type Cache struct {
	rdb    *redis.Client
	sf     singleflight.Group
	setGen *redis.Script
	// genTTL outlives any loader, so a generation cannot expire and reset
	// while a load is in flight.
	genTTL time.Duration
}

func New(client *redis.Client) *Cache {
	return &Cache{
		rdb:    client,
		setGen: redis.NewScript(luaSetIfGeneration),
		genTTL: time.Hour,
	}
}

// Fetch returns the cached row of (t, id) or fills it from load. Concurrent
// misses on one row share a load. Load errors are not cached, and Redis
// errors fall back to load.
func Fetch[T any](
	ctx context.Context,
	c *Cache,
	t event.AggregateType,
	id string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	key := KeyEntity(t, id)

	if v, ok := cached[T](ctx, c, key); ok {
		return v, nil
	}

	res, err, _ := c.sf.Do(key, func() (any, error) {
		gen, err := c.rdb.Get(ctx, KeyGeneration(t, id)).Result()
		switch {
		case errors.Is(err, redis.Nil):
			gen = "0"
		case err != nil:
			return load(ctx)
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(v); err == nil {
			_ = c.setGen.Run(ctx, c.rdb,
				[]string{key, KeyGeneration(t, id)},
				gen, string(b), ttl.Milliseconds(),
			).Err()
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache %s: unexpected %T", key, res)
	}
	return v, nil
}

func cached[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false
	}
	return v, true
}

// Invalidate drops the cached row of one aggregate and bumps its generation
// so that loads started earlier do not store what they read.
func (c *Cache) Invalidate(ctx context.Context, t event.AggregateType, id string) error {
	gen := KeyGeneration(t, id)

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, gen)
		p.Expire(ctx, gen, c.genTTL)
		p.Del(ctx, KeyEntity(t, id))
		return nil
	})
	return err
}
