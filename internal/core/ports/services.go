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

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// --- Infrastructure Ports ---

// SignatureService signs mirror deliveries. The signature covers the
// delivery timestamp and the body together, so a captured request cannot be
// replayed under a newer timestamp.
type SignatureService interface {
	Sign(secret string, timestamp int64, body []byte) string
	Verify(secret string, timestamp int64, body []byte, signature string) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID string, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID string
	Role   string
}

// Roles carried in tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrLockTimeout is returned by LockManager.Acquire when a key stays held
// by someone else past the configured retries.
var ErrLockTimeout = errors.New("lock not acquired in time")

// Release gives back locks obtained from a LockManager.
type Release func(ctx context.Context)

// LockManager hands out short-lived exclusive locks by key.
type LockManager interface {
	// Acquire locks every key, in sorted order, waiting for holders to
	// release. It fails with a lock-timeout error once its retries run out.
	Acquire(ctx context.Context, keys ...string) (Release, error)
	// TryAcquire takes key only if it is free right now.
	TryAcquire(ctx context.Context, key string) (Release, bool, error)
}

// FraudSink receives fraud flags. Implementations must not block the caller.
type FraudSink interface {
	RecordFlag(ctx context.Context, userID string, reason string)
}

// MirrorPublisher delivers an outbox event to the external mirror.
type MirrorPublisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// --- Service Ports (Business Logic) ---

// LedgerService owns the hash-chained ledger.
type LedgerService interface {
	EnsureGenesis(ctx context.Context) (*domain.LedgerEntry, error)
	Append(ctx context.Context, tx pgx.Tx, payload LedgerAppend) (*domain.LedgerEntry, error)
	AppendTransfer(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) ([]domain.LedgerEntry, error)
	Validate(ctx context.Context) (*domain.ChainReport, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Stats(ctx context.Context) (*domain.ChainStats, error)
	EntriesForTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error)
}

// LedgerAppend is the caller-supplied part of a ledger entry; the ledger
// assigns sequence index, timestamp and hashes.
type LedgerAppend struct {
	TransactionID  string
	CounterpartyID string
	SignedAmount   decimal.Decimal
}

// ValidationService runs balance consistency and fraud heuristics.
type ValidationService interface {
	// PreCheck inspects a party before its balance changes. It returns a
	// non-nil error only when the fraud policy is blocking and a flag fired.
	PreCheck(ctx context.Context, userID string, storedBalance, amount decimal.Decimal) error
	// PostCheck confirms the balance moved by exactly the expected delta.
	PostCheck(userID string, before, delta, after decimal.Decimal) error
}

// TransferService coordinates balance-affecting operations.
type TransferService interface {
	ProcessTransfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, note string) (*domain.Transaction, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal, note string) (*domain.Transaction, error)
	OpenAccount(ctx context.Context, userID string) (*domain.Account, error)
}

// CommitHook runs inside the transfer's unit of work right before commit.
type CommitHook func(ctx context.Context, tx pgx.Tx, committed *domain.Transaction) error

// TransferRequest holds validated input for a transfer.
type TransferRequest struct {
	SenderID              string
	ReceiverID            string
	Amount                decimal.Decimal
	PaymentMethod         string
	Note                  string
	Location              string
	Type                  domain.TransactionType
	IdempotencyKey        string
	OriginalTransactionID *uuid.UUID
	OnCommit              CommitHook `json:"-"`
}

// RollbackService reverses committed transactions.
type RollbackService interface {
	CheckEligibility(ctx context.Context, transactionID uuid.UUID) (*domain.Eligibility, error)
	Rollback(ctx context.Context, transactionID uuid.UUID, reason, actorID string) (*RollbackResult, error)
}

// RollbackResult reports a completed rollback.
type RollbackResult struct {
	Success                   bool      `json:"success"`
	Message                   string    `json:"message"`
	CompensatingTransactionID uuid.UUID `json:"compensating_transaction_id"`
}

// BackupService snapshots and restores balances.
type BackupService interface {
	BackupBalance(ctx context.Context, userID, operationType, actorID string) (*domain.BalanceBackup, error)
	RestoreBalance(ctx context.Context, backupID uuid.UUID, reason, actorID string) (*RestoreResult, error)
}

// RestoreResult reports a completed restore.
type RestoreResult struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	UserID       string          `json:"user_id"`
	Balance      decimal.Decimal `json:"balance"`
	AdjustmentID *uuid.UUID      `json:"adjustment_transaction_id,omitempty"`
}

// AuditService records and lists audit entries.
type AuditService interface {
	Record(ctx context.Context, op domain.AuditOperation, entityID, actorID string, success bool, details map[string]any)
	List(ctx context.Context, limit int, operation *domain.AuditOperation) ([]domain.AuditEntry, error)
	FlushBacklog(ctx context.Context) (int, error)
}

// SweepService runs the auto-remediation sweep.
type SweepService interface {
	AutoRollbackStale(ctx context.Context, hoursThreshold int, actorID string) (*SweepResult, error)
}

// SweepResult aggregates one sweep run.
type SweepResult struct {
	RolledBackCount int    `json:"rolled_back_count"`
	ReconciledCount int    `json:"reconciled_count"`
	FailedCount     int    `json:"failed_count"`
	Message         string `json:"message"`
}

// ReportingService answers read-only queries for the web layer.
type ReportingService interface {
	GetTransactionStatus(ctx context.Context, transactionID uuid.UUID) (*TransactionStatusView, error)
	GetBalance(ctx context.Context, userID string) (*BalanceView, error)
	TransactionHistory(ctx context.Context, userID string, limit, offset int) ([]TransactionHistoryItem, error)
	FailedTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	VerifyTransaction(ctx context.Context, transactionID uuid.UUID) (*TransactionVerification, error)
}

// TransactionStatusView combines a transaction with its rollback eligibility.
type TransactionStatusView struct {
	Transaction *domain.Transaction
	Eligibility domain.Eligibility
}

// BalanceView compares a stored balance with the ledger-derived one.
type BalanceView struct {
	UserID     string
	Stored     decimal.Decimal
	Ledger     decimal.Decimal
	Consistent bool
}

// TransactionVerification reports the ledger entries behind a transaction.
type TransactionVerification struct {
	TransactionID uuid.UUID
	Entries       []domain.LedgerEntry
	Verified      bool
}
