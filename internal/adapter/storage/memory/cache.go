package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"finguard-ledger/pkg/clock"
)

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

// IdempotencyCache implements ports.IdempotencyCache with a TTL map.
type IdempotencyCache struct {
	mu    sync.Mutex
	clock clock.Clock
	items map[string]cacheItem
}

func NewIdempotencyCache(clk clock.Clock) *IdempotencyCache {
	return &IdempotencyCache{clock: clk, items: make(map[string]cacheItem)}
}

// Get returns nil, nil on a miss or an expired entry.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return nil, nil
	}
	if !c.clock.Now().Before(item.expiresAt) {
		delete(c.items, key)
		return nil, nil
	}
	return slices.Clone(item.value), nil
}

// Set stores value unless a live entry already exists.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if item, ok := c.items[key]; ok && now.Before(item.expiresAt) {
		return nil
	}
	c.items[key] = cacheItem{value: slices.Clone(value), expiresAt: now.Add(ttl)}
	return nil
}
