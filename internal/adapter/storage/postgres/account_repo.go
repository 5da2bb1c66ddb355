package postgres

import (
	"context"
	"errors"
	"fmt"

	"finguard-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account within a database transaction.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	query := `INSERT INTO accounts (user_id, balance, updated_at) VALUES ($1, $2, $3)`

	if _, err := tx.Exec(ctx, query, a.UserID, a.Balance, a.UpdatedAt); err != nil {
		return wrapWriteErr("insert account", err)
	}
	return nil
}

// Get fetches an account by user ID. It returns nil, nil when absent.
func (r *AccountRepo) Get(ctx context.Context, userID string) (*domain.Account, error) {
	query := `SELECT user_id, balance, updated_at FROM accounts WHERE user_id = $1`

	return scanAccount(r.pool.QueryRow(ctx, query, userID))
}

// GetForUpdate fetches an account and row-locks it until tx ends.
func (r *AccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Account, error) {
	query := `SELECT user_id, balance, updated_at FROM accounts WHERE user_id = $1 FOR UPDATE`

	return scanAccount(tx.QueryRow(ctx, query, userID))
}

// Exists reports whether an account exists.
func (r *AccountRepo) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return exists, nil
}

// AdjustBalance adds delta to the stored balance and returns the new value.
// The non-negative check constraint rejects overdrafts of user accounts.
func (r *AccountRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE user_id = $2 RETURNING balance`

	var balance decimal.Decimal
	if err := tx.QueryRow(ctx, query, delta, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("account not found: %s", userID)
		}
		return decimal.Zero, fmt.Errorf("adjust balance: %w", err)
	}
	return balance, nil
}

// SetBalance overwrites the stored balance.
func (r *AccountRepo) SetBalance(ctx context.Context, tx pgx.Tx, userID string, balance decimal.Decimal) error {
	query := `UPDATE accounts SET balance = $1, updated_at = now() WHERE user_id = $2`

	tag, err := tx.Exec(ctx, query, balance, userID)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account not found: %s", userID)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	if err := row.Scan(&a.UserID, &a.Balance, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}
