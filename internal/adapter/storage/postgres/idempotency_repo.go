package postgres

import (
	"context"
	"errors"
	"fmt"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository. Keys expire after
// domain.IdempotencyTTL and may then be claimed again.
type IdempotencyRepo struct {
	pool Pool
}

func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create claims log.Key inside tx. A live key held by another transfer is a
// conflict; an expired one is overwritten.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	const query = `INSERT INTO idempotency_logs (key, transaction_id, response_json, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE
			SET transaction_id = EXCLUDED.transaction_id,
			    response_json  = EXCLUDED.response_json,
			    created_at     = EXCLUDED.created_at,
			    expires_at     = EXCLUDED.expires_at
			WHERE idempotency_logs.expires_at <= EXCLUDED.created_at`

	tag, err := tx.Exec(ctx, query, log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt, log.ExpiresAt)
	if err != nil {
		return wrapWriteErr("insert idempotency log", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert idempotency log: %w: key %s still live", ports.ErrConflict, log.Key)
	}
	return nil
}

// Get returns the live log for key, or nil, nil.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	const query = `SELECT key, transaction_id, response_json, created_at, expires_at
		FROM idempotency_logs
		WHERE key = $1 AND expires_at > now()`

	log := &domain.IdempotencyLog{}
	err := r.pool.QueryRow(ctx, query, key).
		Scan(&log.Key, &log.TransactionID, &log.ResponseJSON, &log.CreatedAt, &log.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency log: %w", err)
	}
	return log, nil
}
