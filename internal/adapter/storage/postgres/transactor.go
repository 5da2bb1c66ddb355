package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor opens the unit of work used by transfers, rollbacks, restores
// and sweeps. Balance rows are guarded by SELECT ... FOR UPDATE and the
// ledger tip by an advisory lock, so read committed isolation suffices.
type Transactor struct {
	pool Pool
	opts pgx.TxOptions
}

func NewTransactor(pool Pool) *Transactor {
	return &Transactor{
		pool: pool,
		opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite},
	}
}

// Begin starts a transaction. Callers must Commit or Rollback it.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.BeginTx(ctx, t.opts)
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}
	return tx, nil
}
