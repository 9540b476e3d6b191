// Package ban provides a Redis cache in front of the users table's ban flag.
// Every inbound event checks the ban state, so the hot path reads Redis:
//
//	Key:   ban:<user_id>
//	Value: "1"
//
// The users table stays the source of truth; the cache is populated on ban,
// cleared on unban, and callers fall back to the store on a miss.
package ban

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Prefix is the Redis key prefix for ban records.
const Prefix = "ban:"

// Cache mirrors the persisted ban flag in Redis.
type Cache struct {
	client *redis.Client
}

// NewCache creates a ban cache using the provided Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func key(userID int64) string {
	return Prefix + strconv.FormatInt(userID, 10)
}

// IsBanned checks the cache. The second return value reports whether the
// cache held an answer at all: (false, false) means "unknown, ask the
// store". Redis errors degrade to unknown so an outage never blocks traffic.
func (c *Cache) IsBanned(ctx context.Context, userID int64) (banned bool, known bool) {
	val, err := c.client.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false
	}
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// SetBanned records a ban state in the cache. Bans are indefinite, so no TTL
// is set; the entry lives until an explicit unban or cache flush.
func (c *Cache) SetBanned(ctx context.Context, userID int64, banned bool) error {
	v := "0"
	if banned {
		v = "1"
	}
	return c.client.Set(ctx, key(userID), v, 0).Err()
}

// Invalidate drops a cached entry, forcing the next check to hit the store.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, key(userID)).Err()
}
