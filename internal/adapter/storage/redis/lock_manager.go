package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"finguard-ledger/config"
	"finguard-ledger/internal/core/ports"

	"github.com/go-redsync/redsync/v4"
	redsyncgoredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const lockPrefix = "lock:"

// LockManager implements ports.LockManager with redsync mutexes, so account
// locks and the rollback guard hold across every replica of the service.
type LockManager struct {
	rs         *redsync.Redsync
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewLockManager creates a redsync-backed lock manager.
func NewLockManager(client goredis.UniversalClient, cfg config.LockConfig, log zerolog.Logger) *LockManager {
	return &LockManager{
		rs:         redsync.New(redsyncgoredis.NewPool(client)),
		expiry:     cfg.Expiry,
		tries:      cfg.Tries,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}
}

// Acquire locks the given keys in sorted order. On failure every lock taken
// so far is released again.
func (m *LockManager) Acquire(ctx context.Context, keys ...string) (ports.Release, error) {
	keys = sortedUnique(keys)
	held := make([]*redsync.Mutex, 0, len(keys))

	for _, key := range keys {
		mutex := m.rs.NewMutex(lockPrefix+key,
			redsync.WithExpiry(m.expiry),
			redsync.WithTries(m.tries),
			redsync.WithRetryDelay(m.retryDelay),
		)
		if err := mutex.LockContext(ctx); err != nil {
			m.unlock(ctx, held)
			if isContention(err) {
				return nil, fmt.Errorf("%w: %s", ports.ErrLockTimeout, key)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		held = append(held, mutex)
	}

	return func(ctx context.Context) { m.unlock(ctx, held) }, nil
}

// TryAcquire takes key only if nobody holds it. Contention is reported as
// (nil, false, nil); connection problems are errors.
func (m *LockManager) TryAcquire(ctx context.Context, key string) (ports.Release, bool, error) {
	mutex := m.rs.NewMutex(lockPrefix+key,
		redsync.WithExpiry(m.expiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			m.log.Debug().Str("key", key).Msg("lock busy")
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("try lock %s: %w", key, err)
	}
	return func(ctx context.Context) { m.unlock(ctx, []*redsync.Mutex{mutex}) }, true, nil
}

// unlock releases in reverse order. It runs on a context detached from
// cancellation so an aborted request still frees its locks.
func (m *LockManager) unlock(ctx context.Context, held []*redsync.Mutex) {
	ctx = context.WithoutCancel(ctx)
	for i := len(held) - 1; i >= 0; i-- {
		if ok, err := held[i].UnlockContext(ctx); !ok || err != nil {
			m.log.Warn().Err(err).Str("key", held[i].Name()).Msg("failed to release lock")
		}
	}
}

func isContention(err error) bool {
	var taken *redsync.ErrTaken
	return errors.Is(err, redsync.ErrFailed) ||
		errors.As(err, &taken) ||
		strings.Contains(err.Error(), "lock already taken")
}

func sortedUnique(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
