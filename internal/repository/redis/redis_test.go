package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/event"
)

// testClient connects to the server named by CINEMA_TEST_REDIS_ADDR and skips
// the test when it is unset.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CINEMA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CINEMA_TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestFetchDropsRowLoadedBeforeInvalidate(t *testing.T) {
	ctx := context.Background()
	c := New(testClient(t))
	id := uuid.NewString()

	loads := 0
	stale := func(ctx context.Context) (domain.Cinema, error) {
		loads++
		// The projection commits while this load is in flight.
		if err := c.Invalidate(ctx, event.AggregateCinema, id); err != nil {
			t.Fatalf("Invalidate error = %v", err)
		}
		return domain.Cinema{ID: id, Name: "Rex", Version: 1}, nil
	}
	fresh := func(context.Context) (domain.Cinema, error) {
		loads++
		return domain.Cinema{ID: id, Name: "Rex Grand", Version: 2}, nil
	}

	if _, err := Fetch(ctx, c, event.AggregateCinema, id, time.Minute, stale); err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	got, err := Fetch(ctx, c, event.AggregateCinema, id, time.Minute, fresh)
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	if got.Version != 2 || loads != 2 {
		t.Fatalf("got %+v after %d loads, want version 2 from a second load", got, loads)
	}

	// Now cached.
	got, err = Fetch(ctx, c, event.AggregateCinema, id, time.Minute, stale)
	if err != nil || got.Version != 2 || loads != 2 {
		t.Fatalf("cached fetch = %+v, %v after %d loads", got, err, loads)
	}
}

func TestLimiterPerCaller(t *testing.T) {
	ctx := context.Background()
	l := NewLimiter(testClient(t), "test-"+uuid.NewString(), 2, time.Minute)

	for i := range 2 {
		d, err := l.Allow(ctx, "sub:alice")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d = %+v, %v; want allowed", i, d, err)
		}
	}
	d, err := l.Allow(ctx, "sub:alice")
	if err != nil || d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("third request = %+v, %v; want rejected with retry", d, err)
	}
	if d, err := l.Allow(ctx, "sub:bob"); err != nil || !d.Allowed || d.Remaining != 1 {
		t.Fatalf("other caller = %+v, %v", d, err)
	}
}

func TestIdempotencyClaim(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore(testClient(t), time.Minute, time.Minute)
	scope, key := "cinema.create", uuid.NewString()

	c, err := s.Claim(ctx, scope, key)
	if err != nil || !c.Owned {
		t.Fatalf("first claim = %+v, %v; want owned", c, err)
	}
	if c, err := s.Claim(ctx, scope, key); err != nil || !c.Busy() {
		t.Fatalf("second claim = %+v, %v; want busy", c, err)
	}

	if err := s.Abandon(ctx, scope, key); err != nil {
		t.Fatalf("Abandon error = %v", err)
	}
	if c, err := s.Claim(ctx, scope, key); err != nil || !c.Owned {
		t.Fatalf("claim after abandon = %+v, %v; want owned", c, err)
	}

	if err := s.Complete(ctx, scope, key, []byte(`{"id":"c1","version":1}`)); err != nil {
		t.Fatalf("Complete error = %v", err)
	}
	// Abandon never drops a stored response.
	if err := s.Abandon(ctx, scope, key); err != nil {
		t.Fatalf("Abandon error = %v", err)
	}
	c, err = s.Claim(ctx, scope, key)
	if err != nil || string(c.Response) != `{"id":"c1","version":1}` {
		t.Fatalf("claim after complete = %+v, %v", c, err)
	}
}
