package postgres

import (
	"context"
	"errors"
	"fmt"

	"finguard-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ledgerChainLockKey identifies the single ledger chain for
// pg_advisory_xact_lock.
const ledgerChainLockKey int64 = 0x46474c4544474552

const ledgerColumns = `sequence_index, timestamp, transaction_id, counterparty_id, signed_amount, previous_hash, hash`

// LedgerRepo implements ports.LedgerStore. Rows are never updated or deleted.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append inserts an entry. A taken sequence index or hash surfaces as
// ports.ErrConflict.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		e.SequenceIndex, e.Timestamp, e.TransactionID, e.CounterpartyID,
		e.SignedAmount, e.PreviousHash, e.Hash,
	)
	if err != nil {
		return wrapWriteErr("insert ledger entry", err)
	}
	return nil
}

// ReadLatest takes the chain lock for the rest of tx and returns the last
// entry, or nil when the chain is empty.
func (r *LedgerRepo) ReadLatest(ctx context.Context, tx pgx.Tx) (*domain.LedgerEntry, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerChainLockKey); err != nil {
		return nil, fmt.Errorf("lock ledger chain: %w", err)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries ORDER BY sequence_index DESC LIMIT 1`

	e := &domain.LedgerEntry{}
	if err := scanLedgerEntry(tx.QueryRow(ctx, query), e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read latest ledger entry: %w", err)
	}
	return e, nil
}

// ReadAll returns the full chain in sequence order.
func (r *LedgerRepo) ReadAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries ORDER BY sequence_index ASC`

	return r.list(ctx, "read ledger", query)
}

// ReadByTransaction returns the entries recorded for one transaction.
func (r *LedgerRepo) ReadByTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE transaction_id = $1 ORDER BY sequence_index ASC`

	return r.list(ctx, "read ledger by transaction", query, transactionID)
}

// SumByCounterparty returns the ledger-derived balance of a user.
func (r *LedgerRepo) SumByCounterparty(ctx context.Context, counterpartyID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(signed_amount), 0) FROM ledger_entries WHERE counterparty_id = $1`

	var sum decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, counterpartyID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepo) list(ctx context.Context, op, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := scanLedgerEntry(rows, &e); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(row pgx.Row, e *domain.LedgerEntry) error {
	if err := row.Scan(
		&e.SequenceIndex, &e.Timestamp, &e.TransactionID, &e.CounterpartyID,
		&e.SignedAmount, &e.PreviousHash, &e.Hash,
	); err != nil {
		return err
	}
	e.Timestamp = e.Timestamp.UTC()
	return nil
}
