package redis

import (
	"fmt"

	"github.com/kirinyoku/cinema-es/internal/event"
)

const ns = "cinema:v1"

// KeyEntity is the cache key of one read row.
func KeyEntity(t event.AggregateType, id string) string {
	return fmt.Sprintf("%s:%s:%s", ns, t, id)
}

// KeyGeneration counts invalidations of one read row.
func KeyGeneration(t event.AggregateType, id string) string {
	return fmt.Sprintf("%s:gen:%s:%s", ns, t, id)
}

func KeyRateLimit(scope, caller string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, caller)
}

func KeyIdempotency(scope, idemKey string) string {
	return fmt.Sprintf("%s:idem:%s:%s", ns, scope, idemKey)
}

func ChannelEvents() string {
	return ns + ":events"
}
