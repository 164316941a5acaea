// Package ban is the Block Manager: it applies and lifts account
// restrictions, captures identifier bundles for full blocks, answers the
// send-permission and login-time evasion checks, and sweeps lapsed blocks.
//
// Restriction state lives on the user document. Redis holds a read-through
// copy for the hot send-permission path:
//
//	Key:   ban:user:<user_id>
//	Value: <reason>
//	TTL:   time remaining on the block (none for permanent blocks)
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachePrefix is the Redis key prefix for cached restrictions.
const CachePrefix = "ban:user:"

// CacheEntry is a cached restriction. TTL is negative for a permanent block.
type CacheEntry struct {
	Blocked bool
	Reason  string
	TTL     time.Duration
}

// Cache mirrors active restrictions in Redis.
type Cache struct {
	client *redis.Client
}

// NewCache creates a restriction cache using the provided Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Lookup checks whether userID has a cached restriction. A miss is not an
// error. Redis errors are returned so callers can fall back to the store.
func (c *Cache) Lookup(ctx context.Context, userID string) (CacheEntry, error) {
	key := CachePrefix + userID

	reason, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return CacheEntry{}, nil
	}
	if err != nil {
		return CacheEntry{}, fmt.Errorf("ban: cache get: %w", err)
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		// The entry exists but the TTL is unreadable. Report blocked rather
		// than swallowing the restriction.
		return CacheEntry{Blocked: true, Reason: reason}, nil
	}
	if ttl == -1 {
		return CacheEntry{Blocked: true, Reason: reason, TTL: -1}, nil
	}
	if ttl <= 0 {
		// -2: the key expired between GET and TTL.
		return CacheEntry{}, nil
	}
	return CacheEntry{Blocked: true, Reason: reason, TTL: ttl}, nil
}

// Set caches a restriction. ttl <= 0 stores it without expiry.
func (c *Cache) Set(ctx context.Context, userID, reason string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, CachePrefix+userID, reason, ttl).Err(); err != nil {
		return fmt.Errorf("ban: cache set: %w", err)
	}
	return nil
}

// Clear removes a cached restriction immediately.
func (c *Cache) Clear(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, CachePrefix+userID).Err(); err != nil {
		return fmt.Errorf("ban: cache del: %w", err)
	}
	return nil
}
