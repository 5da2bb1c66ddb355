package postgres

import (
	"context"
	"errors"
	"fmt"

	"finguard-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BackupRepo implements ports.BackupRepository.
type BackupRepo struct {
	pool Pool
}

// NewBackupRepo creates a new BackupRepo.
func NewBackupRepo(pool Pool) *BackupRepo {
	return &BackupRepo{pool: pool}
}

// Create stores a balance snapshot.
func (r *BackupRepo) Create(ctx context.Context, b *domain.BalanceBackup) error {
	query := `INSERT INTO balance_backups (id, user_id, balance_snapshot, operation_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, b.ID, b.UserID, b.BalanceSnapshot, b.OperationType, b.ActorID, b.CreatedAt)
	if err != nil {
		return wrapWriteErr("insert balance backup", err)
	}
	return nil
}

// GetByID fetches a snapshot, or nil when it does not exist.
func (r *BackupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BalanceBackup, error) {
	query := `SELECT id, user_id, balance_snapshot, operation_type, actor_id, created_at
		FROM balance_backups WHERE id = $1`

	b := &domain.BalanceBackup{}
	if err := scanBackup(r.pool.QueryRow(ctx, query, id), b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance backup: %w", err)
	}
	return b, nil
}

// ListByUser returns a user's snapshots, newest first.
func (r *BackupRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.BalanceBackup, error) {
	query := `SELECT id, user_id, balance_snapshot, operation_type, actor_id, created_at
		FROM balance_backups WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list balance backups: %w", err)
	}
	defer rows.Close()

	var backups []domain.BalanceBackup
	for rows.Next() {
		var b domain.BalanceBackup
		if err := scanBackup(rows, &b); err != nil {
			return nil, fmt.Errorf("scan balance backup: %w", err)
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func scanBackup(row pgx.Row, b *domain.BalanceBackup) error {
	return row.Scan(&b.ID, &b.UserID, &b.BalanceSnapshot, &b.OperationType, &b.ActorID, &b.CreatedAt)
}
