package postgres

import (
	"context"
	"errors"
	"fmt"

	"finguard-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RollbackRepo implements ports.RollbackRepository. The primary key on
// transaction_id is what makes a second rollback of the same transaction
// impossible.
type RollbackRepo struct {
	pool Pool
}

// NewRollbackRepo creates a new RollbackRepo.
func NewRollbackRepo(pool Pool) *RollbackRepo {
	return &RollbackRepo{pool: pool}
}

// Create inserts a rollback record within a database transaction.
func (r *RollbackRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.RollbackRecord) error {
	query := `INSERT INTO rollback_records (transaction_id, reason, actor_id, timestamp, compensating_transaction_id)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, rec.TransactionID, rec.Reason, rec.ActorID, rec.Timestamp, rec.CompensatingTransactionID)
	if err != nil {
		return wrapWriteErr("insert rollback record", err)
	}
	return nil
}

// GetByTransactionID returns the rollback record of a transaction, or nil.
func (r *RollbackRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.RollbackRecord, error) {
	query := `SELECT transaction_id, reason, actor_id, timestamp, compensating_transaction_id
		FROM rollback_records WHERE transaction_id = $1`

	rec := &domain.RollbackRecord{}
	err := r.pool.QueryRow(ctx, query, transactionID).Scan(
		&rec.TransactionID, &rec.Reason, &rec.ActorID, &rec.Timestamp, &rec.CompensatingTransactionID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rollback record: %w", err)
	}
	return rec, nil
}
