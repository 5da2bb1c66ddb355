package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	healthCheckKey = "finguard:health:check"
	healthCheckTTL = 5 * time.Second
)

// HealthCheck checks Redis with a short-lived write. A read-only replica
// answers PING but cannot hold account locks, so PING alone is not enough.
type HealthCheck struct {
	client goredis.UniversalClient
}

func NewHealthCheck(client goredis.UniversalClient) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Name() string { return "redis" }

func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, healthCheckKey, time.Now().Unix(), healthCheckTTL).Err(); err != nil {
		return fmt.Errorf("redis write check: %w", err)
	}
	return nil
}
