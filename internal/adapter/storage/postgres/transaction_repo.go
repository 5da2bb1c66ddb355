package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `t.id, t.sender_id, t.receiver_id, t.amount, t.payment_method, t.type,
		t.note, t.location, t.timestamp, t.status, t.reconcile_pending, t.original_transaction_id`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, sender_id, receiver_id, amount, payment_method, type,
		note, location, timestamp, status, reconcile_pending, original_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.SenderID, t.ReceiverID, t.Amount, t.PaymentMethod, string(t.Type),
		t.Note, t.Location, t.Timestamp, string(t.Status), t.ReconcilePending, t.OriginalTransactionID,
	)
	if err != nil {
		return wrapWriteErr("insert transaction", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1`

	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches a transaction and row-locks it until tx ends.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1 FOR UPDATE`

	return scanTransaction(tx.QueryRow(ctx, query, id))
}

// UpdateStatus updates a transaction's status within a database transaction.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1 WHERE id = $2`

	tag, err := tx.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// SetReconcilePending flags or clears a transaction whose ledger entries
// still have to be appended.
func (r *TransactionRepo) SetReconcilePending(ctx context.Context, tx pgx.Tx, id uuid.UUID, pending bool) error {
	tag, err := tx.Exec(ctx, `UPDATE transactions SET reconcile_pending = $1 WHERE id = $2`, pending, id)
	if err != nil {
		return fmt.Errorf("update reconcile flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// ListStale returns committed transfers stamped in [after, before) that were
// never rolled back, oldest first. Deposits, withdrawals and compensating
// types are never candidates.
func (r *TransactionRepo) ListStale(ctx context.Context, after, before time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions t
		LEFT JOIN rollback_records rr ON rr.transaction_id = t.id
		WHERE t.status = 'committed' AND t.type = 'TRANSFER' AND t.timestamp >= $1 AND t.timestamp < $2
			AND rr.transaction_id IS NULL
		ORDER BY t.timestamp ASC
		LIMIT $3`

	return r.list(ctx, "list stale transactions", query, after, before, limit)
}

// ListReconcilePending returns committed transactions missing ledger entries.
func (r *TransactionRepo) ListReconcilePending(ctx context.Context, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.reconcile_pending
		ORDER BY t.timestamp ASC
		LIMIT $1`

	return r.list(ctx, "list reconcile pending", query, limit)
}

// ListByUser returns a page of the user's transactions, newest first, with
// rollback details where a rollback exists.
func (r *TransactionRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]ports.TransactionHistoryItem, error) {
	query := `SELECT ` + transactionColumns + `, rr.timestamp, rr.reason, rr.compensating_transaction_id
		FROM transactions t
		LEFT JOIN rollback_records rr ON rr.transaction_id = t.id
		WHERE t.sender_id = $1 OR t.receiver_id = $1
		ORDER BY t.timestamp DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list user transactions: %w", err)
	}
	defer rows.Close()

	var items []ports.TransactionHistoryItem
	for rows.Next() {
		var item ports.TransactionHistoryItem
		t := &item.Transaction
		err := rows.Scan(
			&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.PaymentMethod, &t.Type,
			&t.Note, &t.Location, &t.Timestamp, &t.Status, &t.ReconcilePending, &t.OriginalTransactionID,
			&item.RolledBackAt, &item.RollbackReason, &item.CompensatingID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return items, nil
}

func (r *TransactionRepo) list(ctx context.Context, op, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

// scanTransaction scans a single row into a Transaction. It returns nil, nil
// when the row does not exist.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.PaymentMethod, &t.Type,
		&t.Note, &t.Location, &t.Timestamp, &t.Status, &t.ReconcilePending, &t.OriginalTransactionID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
