package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCandidates are tried in order when REDIS_ADDR is unset: the compose service name in CI,
// a default local server, then the local test profile port.
var redisCandidates = []string{"redis:6379", "localhost:6379", "localhost:56379"}

// SetupTestRedis returns a connected client, skipping the test when no server answers.
// Pub/sub is not scoped to a logical database, so callers isolate themselves with unique
// channel prefixes rather than a dedicated DB.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	candidates := redisCandidates
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}
	for _, addr := range candidates {
		if client := pingRedis(t, addr); client != nil {
			return client
		}
	}
	skipOrFail(t, requireRedis(), "redis not available at %v", candidates)
	return nil
}

func pingRedis(t testing.TB, addr string) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("redis not available at %s: %v", addr, err)
		closeLogged(t, "redis client", client)
		return nil
	}
	return client
}
