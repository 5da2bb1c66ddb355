package ports

import (
	"context"
	"errors"
	"time"

	"finguard-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// ErrConflict is returned by repositories when a uniqueness constraint rejects
// an insert (duplicate rollback record, ledger sequence taken, ...).
var ErrConflict = errors.New("conflicting record")

// AccountRepository defines persistence operations for stored balances.
// Methods accepting pgx.Tx run inside the caller's unit of work; the
// ForUpdate variant takes a row lock until that unit ends.
type AccountRepository interface {
	Create(ctx context.Context, tx pgx.Tx, account *domain.Account) error
	Get(ctx context.Context, userID string) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Account, error)
	Exists(ctx context.Context, userID string) (bool, error)
	AdjustBalance(ctx context.Context, tx pgx.Tx, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	SetBalance(ctx context.Context, tx pgx.Tx, userID string, balance decimal.Decimal) error
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	SetReconcilePending(ctx context.Context, tx pgx.Tx, id uuid.UUID, pending bool) error
	// ListStale returns committed transfers stamped in [after, before) that
	// have no rollback record, oldest first.
	ListStale(ctx context.Context, after, before time.Time, limit int) ([]domain.Transaction, error)
	ListReconcilePending(ctx context.Context, limit int) ([]domain.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]TransactionHistoryItem, error)
}

// TransactionHistoryItem is a transaction joined with its rollback, if any.
type TransactionHistoryItem struct {
	Transaction    domain.Transaction
	RolledBackAt   *time.Time
	RollbackReason *string
	CompensatingID *uuid.UUID
}

// LedgerStore persists the hash chain. ReadLatest takes the chain lock for
// the remainder of tx, so the following Append cannot race another writer.
type LedgerStore interface {
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	ReadLatest(ctx context.Context, tx pgx.Tx) (*domain.LedgerEntry, error)
	ReadAll(ctx context.Context) ([]domain.LedgerEntry, error)
	ReadByTransaction(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error)
	SumByCounterparty(ctx context.Context, counterpartyID string) (decimal.Decimal, error)
}

// RollbackRepository persists RollbackRecords. Create returns ErrConflict
// when the transaction already has one.
type RollbackRepository interface {
	Create(ctx context.Context, tx pgx.Tx, record *domain.RollbackRecord) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.RollbackRecord, error)
}

// BackupRepository persists balance snapshots.
type BackupRepository interface {
	Create(ctx context.Context, backup *domain.BalanceBackup) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BalanceBackup, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.BalanceBackup, error)
}

// AuditRepository persists audit entries (insert-only).
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, limit int, operation *domain.AuditOperation) ([]domain.AuditEntry, error)
}

// OutboxRepository persists mirror events.
type OutboxRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	// MarkFailed records a failed attempt; the event turns FAILED once
	// attempts reach maxAttempts.
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) error
}

// FraudFlagRepository persists fraud flags, at most one open flag per user.
type FraudFlagRepository interface {
	// Flag returns false if the user was already flagged.
	Flag(ctx context.Context, flag *domain.FraudFlag) (bool, error)
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// IdempotencyCache is the fast first layer of idempotency lookups.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
