package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct{ s *Store }

// NewTransactionRepo creates a memory TransactionRepo.
func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{s: s} }

// Create inserts t. Both parties must have accounts.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	return r.s.write(tx, func() (func(), error) {
		if _, ok := r.s.transactions[t.ID]; ok {
			return nil, fmt.Errorf("insert transaction: %w", ports.ErrConflict)
		}
		for _, id := range []string{t.SenderID, t.ReceiverID} {
			if _, ok := r.s.accounts[id]; !ok {
				return nil, fmt.Errorf("insert transaction: unknown account %s", id)
			}
		}
		r.s.transactions[t.ID] = *t
		return func() { delete(r.s.transactions, t.ID) }, nil
	})
}

// GetByID returns the transaction, or nil if unknown.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// GetByIDForUpdate reads the transaction inside tx.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	if _, err := asTx(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// UpdateStatus sets the transaction status inside tx.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	return r.update(tx, id, func(t *domain.Transaction) { t.Status = status })
}

// SetReconcilePending sets or clears the missing-ledger marker inside tx.
func (r *TransactionRepo) SetReconcilePending(ctx context.Context, tx pgx.Tx, id uuid.UUID, pending bool) error {
	return r.update(tx, id, func(t *domain.Transaction) { t.ReconcilePending = pending })
}

func (r *TransactionRepo) update(tx pgx.Tx, id uuid.UUID, mutate func(t *domain.Transaction)) error {
	return r.s.write(tx, func() (func(), error) {
		prev, ok := r.s.transactions[id]
		if !ok {
			return nil, fmt.Errorf("transaction not found: %s", id)
		}
		next := prev
		mutate(&next)
		r.s.transactions[id] = next
		return func() { r.s.transactions[id] = prev }, nil
	})
}

// ListStale returns committed transfers stamped in [after, before) that were
// never rolled back, oldest first.
func (r *TransactionRepo) ListStale(ctx context.Context, after, before time.Time, limit int) ([]domain.Transaction, error) {
	return r.filter(limit, true, func(t *domain.Transaction) bool {
		if t.Status != domain.TransactionStatusCommitted || t.Type != domain.TransactionTypeTransfer {
			return false
		}
		if t.Timestamp.Before(after) || !t.Timestamp.Before(before) {
			return false
		}
		_, rolled := r.s.rollbacks[t.ID]
		return !rolled
	}), nil
}

// ListReconcilePending returns transactions still awaiting ledger entries, oldest first.
func (r *TransactionRepo) ListReconcilePending(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return r.filter(limit, true, func(t *domain.Transaction) bool { return t.ReconcilePending }), nil
}

// ListByUser returns a page of userID's history, newest first, with rollback details.
func (r *TransactionRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]ports.TransactionHistoryItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	txns := r.sorted(false, func(t *domain.Transaction) bool { return t.Involves(userID) })
	if offset >= len(txns) {
		return nil, nil
	}
	txns = txns[offset:]
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}

	items := make([]ports.TransactionHistoryItem, 0, len(txns))
	for _, t := range txns {
		item := ports.TransactionHistoryItem{Transaction: t}
		if rec, ok := r.s.rollbacks[t.ID]; ok {
			at, reason, comp := rec.Timestamp, rec.Reason, rec.CompensatingTransactionID
			item.RolledBackAt, item.RollbackReason, item.CompensatingID = &at, &reason, &comp
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *TransactionRepo) filter(limit int, asc bool, keep func(t *domain.Transaction) bool) []domain.Transaction {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := r.sorted(asc, keep)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sorted must be called with the store lock held.
func (r *TransactionRepo) sorted(asc bool, keep func(t *domain.Transaction) bool) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range r.s.transactions {
		if keep(&t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if asc {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
