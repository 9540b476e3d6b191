package ban

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestCache connects to a local Redis and clears leftover test keys.
// Tests that call this helper require Redis on localhost:6379 and skip
// otherwise.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	cleanup := func() {
		iter := client.Scan(ctx, 0, Prefix+"9900*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewCache(client)
}

func TestIsBanned_UnknownUser(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	banned, known := cache.IsBanned(ctx, 99001)
	if known {
		t.Errorf("expected unknown for a fresh id, got banned=%t", banned)
	}
}

func TestSetAndCheck(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetBanned(ctx, 99002, true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	banned, known := cache.IsBanned(ctx, 99002)
	if !known || !banned {
		t.Errorf("IsBanned = (%t, %t), want (true, true)", banned, known)
	}

	if err := cache.SetBanned(ctx, 99002, false); err != nil {
		t.Fatalf("SetBanned(false): %v", err)
	}
	banned, known = cache.IsBanned(ctx, 99002)
	if !known || banned {
		t.Errorf("IsBanned after unban = (%t, %t), want (false, true)", banned, known)
	}
}

func TestInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetBanned(ctx, 99003, true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	if err := cache.Invalidate(ctx, 99003); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, known := cache.IsBanned(ctx, 99003); known {
		t.Error("expected unknown after invalidate")
	}
}
