package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCandidates lists where a test Redis usually lives: REDIS_ADDR in CI,
// the compose service name, a plain local install, then the test profile port.
func redisCandidates() []string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return []string{addr}
	}
	return []string{"redis:6379", "localhost:6379", "localhost:56379"}
}

// SetupTestRedis returns a client on an otherwise unused logical DB, flushed
// before use. The test is skipped when no Redis answers unless
// TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	for _, addr := range redisCandidates() {
		if !ping(addr, 0) {
			continue
		}
		db := reserveDB(t, addr)
		client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
		t.Cleanup(func() { _ = client.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush redis db %d: %v", db, err)
		}
		return client
	}

	if requireRedis() {
		t.Fatal("redis not available for testing")
	}
	t.Skip("redis not available for testing")
	return nil
}

func ping(addr string, db int) bool {
	c := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer func() { _ = c.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err() == nil
}

// reserveDB claims a logical DB in 1..15 through a lock key in DB 0 so
// parallel packages never flush each other's data. TEST_REDIS_DB overrides it.
func reserveDB(t testing.TB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = meta.Close() }()

	owner := fmt.Sprintf("%d:%d", os.Getpid(), time.Now().UnixNano())
	for i := 1; i <= 15; i++ {
		key := fmt.Sprintf("portal:testutil:db_lock:%d", i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, key, owner, 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			c := redis.NewClient(&redis.Options{Addr: addr})
			defer func() { _ = c.Close() }()
			delCtx, delCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer delCancel()
			_ = c.Del(delCtx, key).Err()
		})
		return i
	}
	t.Logf("no free redis db at %s, falling back to DB 1", addr)
	return 1
}
