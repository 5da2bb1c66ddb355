package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RollbackRepo implements ports.RollbackRepository.
type RollbackRepo struct{ s *Store }

// NewRollbackRepo creates a memory RollbackRepo.
func NewRollbackRepo(s *Store) *RollbackRepo { return &RollbackRepo{s: s} }

// Create stores rec. A second record for the same transaction or the same
// compensating transaction is ports.ErrConflict.
func (r *RollbackRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.RollbackRecord) error {
	return r.s.write(tx, func() (func(), error) {
		if _, ok := r.s.rollbacks[rec.TransactionID]; ok {
			return nil, fmt.Errorf("insert rollback record: %w", ports.ErrConflict)
		}
		for _, other := range r.s.rollbacks {
			if other.CompensatingTransactionID == rec.CompensatingTransactionID {
				return nil, fmt.Errorf("insert rollback record: %w", ports.ErrConflict)
			}
		}
		r.s.rollbacks[rec.TransactionID] = *rec
		return func() { delete(r.s.rollbacks, rec.TransactionID) }, nil
	})
}

// GetByTransactionID returns the record, or nil if the transaction was never rolled back.
func (r *RollbackRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.RollbackRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.rollbacks[transactionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// BackupRepo implements ports.BackupRepository.
type BackupRepo struct{ s *Store }

// NewBackupRepo creates a memory BackupRepo.
func NewBackupRepo(s *Store) *BackupRepo { return &BackupRepo{s: s} }

// Create stores b.
func (r *BackupRepo) Create(ctx context.Context, b *domain.BalanceBackup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.backups[b.ID]; ok {
		return fmt.Errorf("insert backup: %w", ports.ErrConflict)
	}
	r.s.backups[b.ID] = *b
	return nil
}

// GetByID returns the backup, or nil if unknown.
func (r *BackupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BalanceBackup, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.backups[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// ListByUser returns userID's backups, newest first.
func (r *BackupRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.BalanceBackup, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.BalanceBackup
	for _, b := range r.s.backups {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

// NewAuditRepo creates a memory AuditRepo.
func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

// Create appends e.
func (r *AuditRepo) Create(ctx context.Context, e *domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *e)
	return nil
}

// List returns the newest entries first.
func (r *AuditRepo) List(ctx context.Context, limit int, op *domain.AuditOperation) ([]domain.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.AuditEntry, 0, len(r.s.audit))
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		if op != nil && e.OperationType != *op {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct{ s *Store }

// NewOutboxRepo creates a memory OutboxRepo.
func NewOutboxRepo(s *Store) *OutboxRepo { return &OutboxRepo{s: s} }

// Create enqueues e inside tx.
func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.OutboxEvent) error {
	return r.s.write(tx, func() (func(), error) {
		if _, ok := r.s.outbox[e.ID]; ok {
			return nil, fmt.Errorf("insert outbox event: %w", ports.ErrConflict)
		}
		r.s.outbox[e.ID] = *e
		return func() { delete(r.s.outbox, e.ID) }, nil
	})
}

// ListPending returns pending events, oldest first.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.OutboxEvent
	for _, e := range r.s.outbox {
		if e.Status == domain.OutboxStatusPending {
			e.Payload = slices.Clone(e.Payload)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkPublished marks the event delivered.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	e.Status = domain.OutboxStatusPublished
	e.UpdatedAt = r.s.now()
	r.s.outbox[id] = e
	return nil
}

// MarkFailed counts a failed attempt and parks the event once maxAttempts is reached.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	e.Attempts++
	e.LastError = &lastError
	if e.Attempts >= maxAttempts {
		e.Status = domain.OutboxStatusFailed
	}
	e.UpdatedAt = r.s.now()
	r.s.outbox[id] = e
	return nil
}

// FraudFlagRepo implements ports.FraudFlagRepository.
type FraudFlagRepo struct{ s *Store }

// NewFraudFlagRepo creates a memory FraudFlagRepo.
func NewFraudFlagRepo(s *Store) *FraudFlagRepo { return &FraudFlagRepo{s: s} }

// Flag records f and reports whether the user was newly flagged.
func (r *FraudFlagRepo) Flag(ctx context.Context, f *domain.FraudFlag) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.fraudFlags[f.UserID]; ok {
		return false, nil
	}
	r.s.fraudFlags[f.UserID] = *f
	return true, nil
}

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct{ s *Store }

// NewIdempotencyRepo creates a memory IdempotencyRepo.
func NewIdempotencyRepo(s *Store) *IdempotencyRepo { return &IdempotencyRepo{s: s} }

// Create stores l. A live log under the same key is ports.ErrConflict.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, l *domain.IdempotencyLog) error {
	return r.s.write(tx, func() (func(), error) {
		prev, ok := r.s.idempotency[l.Key]
		if ok && !prev.Expired(l.CreatedAt) {
			return nil, fmt.Errorf("insert idempotency log: %w", ports.ErrConflict)
		}
		r.s.idempotency[l.Key] = *l
		if ok {
			return func() { r.s.idempotency[l.Key] = prev }, nil
		}
		return func() { delete(r.s.idempotency, l.Key) }, nil
	})
}

// Get returns the live log for key, or nil.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.idempotency[key]
	if !ok || l.Expired(r.s.now()) {
		return nil, nil
	}
	return &l, nil
}
