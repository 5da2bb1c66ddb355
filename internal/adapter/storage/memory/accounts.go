package memory

import (
	"context"
	"errors"
	"fmt"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrNegativeBalance mirrors the accounts_balance_non_negative constraint.
var ErrNegativeBalance = errors.New("balance would become negative")

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct{ s *Store }

// NewAccountRepo creates a memory AccountRepo.
func NewAccountRepo(s *Store) *AccountRepo { return &AccountRepo{s: s} }

// Create inserts a new account; a duplicate user id is ports.ErrConflict.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	return r.s.write(tx, func() (func(), error) {
		if _, ok := r.s.accounts[a.UserID]; ok {
			return nil, fmt.Errorf("insert account: %w", ports.ErrConflict)
		}
		r.s.accounts[a.UserID] = *a
		return func() { delete(r.s.accounts, a.UserID) }, nil
	})
}

// Get returns the account, or nil if it does not exist.
func (r *AccountRepo) Get(ctx context.Context, userID string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// GetForUpdate reads the account. Row locking is the LockManager's job here.
func (r *AccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Account, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	return r.Get(ctx, userID)
}

// Exists reports whether userID has an account.
func (r *AccountRepo) Exists(ctx context.Context, userID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.accounts[userID]
	return ok, nil
}

// AdjustBalance adds delta and returns the new balance. Only SYSTEM may go negative.
func (r *AccountRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.s.write(tx, func() (func(), error) {
		prev, ok := r.s.accounts[userID]
		if !ok {
			return nil, fmt.Errorf("account not found: %s", userID)
		}
		next := prev
		next.Balance = prev.Balance.Add(delta)
		if !domain.IsSystemAccount(userID) && next.Balance.IsNegative() {
			return nil, fmt.Errorf("adjust balance: %w", ErrNegativeBalance)
		}
		next.UpdatedAt = r.s.now()
		r.s.accounts[userID] = next
		balance = next.Balance
		return func() { r.s.accounts[userID] = prev }, nil
	})
	return balance, err
}

// SetBalance overwrites the balance. Only SYSTEM may be set negative.
func (r *AccountRepo) SetBalance(ctx context.Context, tx pgx.Tx, userID string, balance decimal.Decimal) error {
	return r.s.write(tx, func() (func(), error) {
		prev, ok := r.s.accounts[userID]
		if !ok {
			return nil, fmt.Errorf("account not found: %s", userID)
		}
		if !domain.IsSystemAccount(userID) && balance.IsNegative() {
			return nil, fmt.Errorf("set balance: %w", ErrNegativeBalance)
		}
		next := prev
		next.Balance = balance
		next.UpdatedAt = r.s.now()
		r.s.accounts[userID] = next
		return func() { r.s.accounts[userID] = prev }, nil
	})
}
