package redis

import (
	"context"
	"fmt"
	"time"

	"finguard-ledger/config"
	"finguard-ledger/pkg/retry"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	clientName     = "finguard-ledger"
	connectBackoff = 200 * time.Millisecond
)

// NewClient connects to Redis. The first ping is retried with backoff so the
// ledger can start next to a Redis that is still booting; after that the
// client reconnects on its own.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (goredis.UniversalClient, error) {
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:      []string{cfg.Addr()},
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	})

	policy := retry.Policy{Attempts: cfg.ConnectAttempts, Base: connectBackoff}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		err := client.Ping(ctx).Err()
		if err != nil {
			log.Warn().Err(err).
				Str("addr", cfg.Addr()).
				Int("attempt", attempt+1).
				Msg("Redis not reachable yet")
		}
		return err
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Redis connection established")

	return client, nil
}
