package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// luaSlidingWindow records a hit in a sorted set of the last window and
// reports whether the caller is over limit.
// KEYS[1] = key
// ARGV[1] = now_ms
// ARGV[2] = window_ms
// ARGV[3] = limit
// ARGV[4] = unique member
// Returns {allowed, remaining, retry_ms}.
const luaSlidingWindow = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window - (now - (tonumber(oldest[2]) or now))
  if retry < 0 then retry = 0 end
  return {0, 0, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, limit - count - 1, 0}
`

// Decision is the outcome of one rate-limited request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter allows at most limit requests per caller in any rolling window.
// Rejected requests are not counted.
type Limiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	script *redis.Script
}

func NewLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaSlidingWindow),
	}
}

// Allow records a request of caller, typically "sub:<jwt subject>" or
// "ip:<address>".
func (l *Limiter) Allow(ctx context.Context, caller string) (Decision, error) {
	const op = "redis.Limiter.Allow"

	res, err := l.script.Run(ctx, l.rdb,
		[]string{KeyRateLimit(l.scope, caller)},
		time.Now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%s: unexpected script result %v", op, res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
