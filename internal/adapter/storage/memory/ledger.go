package memory

import (
	"context"
	"fmt"
	"slices"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerStore on an append-only slice.
type LedgerRepo struct{ s *Store }

// NewLedgerRepo creates a memory LedgerRepo.
func NewLedgerRepo(s *Store) *LedgerRepo { return &LedgerRepo{s: s} }

// Append adds e at the end of the chain. The sequence index must be the
// next free one and the hash must be new.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	return r.s.write(tx, func() (func(), error) {
		if e.SequenceIndex != int64(len(r.s.ledger)) {
			return nil, fmt.Errorf("insert ledger entry %d: %w", e.SequenceIndex, ports.ErrConflict)
		}
		if _, dup := r.s.ledgerHashes[e.Hash]; dup {
			return nil, fmt.Errorf("insert ledger entry %d: %w", e.SequenceIndex, ports.ErrConflict)
		}
		r.s.ledger = append(r.s.ledger, *e)
		r.s.ledgerHashes[e.Hash] = struct{}{}
		return func() {
			n := len(r.s.ledger)
			if n > 0 && r.s.ledger[n-1].Hash == e.Hash {
				r.s.ledger = r.s.ledger[:n-1]
			}
			delete(r.s.ledgerHashes, e.Hash)
		}, nil
	})
}

// ReadLatest takes the chain lock for the rest of tx and returns the last
// entry, or nil on an empty chain.
func (r *LedgerRepo) ReadLatest(ctx context.Context, tx pgx.Tx) (*domain.LedgerEntry, error) {
	if err := r.s.lockChain(tx); err != nil {
		return nil, fmt.Errorf("lock ledger chain: %w", err)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if len(r.s.ledger) == 0 {
		return nil, nil
	}
	e := r.s.ledger[len(r.s.ledger)-1]
	return &e, nil
}

// ReadAll returns a copy of the chain in sequence order.
func (r *LedgerRepo) ReadAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return slices.Clone(r.s.ledger), nil
}

// ReadByTransaction returns the entries written for one transaction.
func (r *LedgerRepo) ReadByTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.LedgerEntry
	for _, e := range r.s.ledger {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// SumByCounterparty totals the signed amounts of counterpartyID's entries.
func (r *LedgerRepo) SumByCounterparty(ctx context.Context, counterpartyID string) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sum := decimal.Zero
	for _, e := range r.s.ledger {
		if e.CounterpartyID == counterpartyID {
			sum = sum.Add(e.SignedAmount)
		}
	}
	return sum, nil
}

// Tamper overwrites a stored entry in place. Test helper for chain
// validation; production code never mutates entries.
func (r *LedgerRepo) Tamper(index int, mutate func(e *domain.LedgerEntry)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if index >= 0 && index < len(r.s.ledger) {
		mutate(&r.s.ledger[index])
	}
}
