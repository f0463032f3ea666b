package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemPending = "PENDING"
	idemDone    = "DONE:"
)

// luaClaim returns the stored value of a key, or claims it and returns nil.
// KEYS[1] = key
// ARGV[1] = claim ttl_ms
// ARGV[2] = pending marker
const luaClaim = `
local v = redis.call('GET', KEYS[1])
if v then
  return v
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[1])
return false
`

// luaAbandon drops a claim that never completed.
// ARGV[1] = pending marker
const luaAbandon = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// Claim is the state of an idempotency key when a request arrives.
type Claim struct {
	// Owned means this request holds the key and must Complete or Abandon it.
	Owned bool
	// Response is the stored response of an earlier request with the key.
	Response []byte
}

// Busy reports that another request holds the key.
func (c Claim) Busy() bool { return !c.Owned && c.Response == nil }

// IdempotencyStore remembers create responses per scope and Idempotency-Key.
type IdempotencyStore struct {
	rdb      *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
	claim    *redis.Script
	abandon  *redis.Script
}

// NewIdempotencyStore keeps responses for ttl. A claim that is neither
// completed nor abandoned expires after claimTTL.
func NewIdempotencyStore(rdb *redis.Client, ttl, claimTTL time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		rdb:      rdb,
		ttl:      ttl,
		claimTTL: claimTTL,
		claim:    redis.NewScript(luaClaim),
		abandon:  redis.NewScript(luaAbandon),
	}
}

func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) (Claim, error) {
	const op = "redis.IdempotencyStore.Claim"

	v, err := s.claim.Run(ctx, s.rdb, []string{KeyIdempotency(scope, key)}, s.claimTTL.Milliseconds(), idemPending).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return Claim{Owned: true}, nil
	case err != nil:
		return Claim{}, fmt.Errorf("%s: %w", op, err)
	}

	if resp, ok := strings.CutPrefix(v, idemDone); ok {
		return Claim{Response: []byte(resp)}, nil
	}
	return Claim{}, nil
}

// Complete stores the response of an owned claim.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, response []byte) error {
	return s.rdb.Set(ctx, KeyIdempotency(scope, key), idemDone+string(response), s.ttl).Err()
}

// Abandon releases an owned claim so that the request can be retried.
func (s *IdempotencyStore) Abandon(ctx context.Context, scope, key string) error {
	return s.abandon.Run(ctx, s.rdb, []string{KeyIdempotency(scope, key)}, idemPending).Err()
}
