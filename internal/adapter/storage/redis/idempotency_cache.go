package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "finguard:idem:"

// IdempotencyCache fronts the idempotency_logs table with Redis. A miss or
// an expired key falls through to the database, which stays authoritative.
type IdempotencyCache struct {
	client goredis.UniversalClient
}

func NewIdempotencyCache(client goredis.UniversalClient) *IdempotencyCache {
	return &IdempotencyCache{client: client}
}

// cacheKey hashes the caller's key so user-supplied strings of any length
// map to fixed-size Redis keys.
func cacheKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return idempotencyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the stored transfer response, or nil, nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("idempotency cache get: %w", err)
	}
	return val, nil
}

// Set stores a transfer response unless one is already cached for key, so a
// late duplicate can never replace the first committed response.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.SetArgs(ctx, cacheKey(key), value, goredis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("idempotency cache set: %w", err)
	}
	return nil
}
