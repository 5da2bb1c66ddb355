package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemAccountID is the pseudo-account on the other side of deposits,
// withdrawals and administrative adjustments. It may carry a negative balance.
const SystemAccountID = "SYSTEM"

// MoneyScale is the number of fractional digits money values may carry.
const MoneyScale = 2

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeTransfer, TransactionTypeRefund, TransactionTypeDeposit,
		TransactionTypeWithdrawal, TransactionTypeAdjustment:
		return true
	}
	return false
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusCommitted  TransactionStatus = "committed"
	TransactionStatusRolledBack TransactionStatus = "rolled_back"
	// TransactionStatusFailed is never persisted; it is reported to callers
	// when a pending transfer is abandoned before commit.
	TransactionStatusFailed TransactionStatus = "failed"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive with at most 2 decimal places")
	ErrSelfTransfer      = errors.New("sender and receiver must differ")
	ErrMissingParty      = errors.New("sender and receiver are required")
	ErrInvalidType       = errors.New("unknown transaction type")
	ErrInvalidTransition = errors.New("invalid transaction status transition")
)

// Transaction is the canonical business record of a money movement.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	SenderID      string            `json:"sender_id"`
	ReceiverID    string            `json:"receiver_id"`
	Amount        decimal.Decimal   `json:"amount"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	Type          TransactionType   `json:"type"`
	Note          string            `json:"note,omitempty"`
	Location      string            `json:"location,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        TransactionStatus `json:"status"`
	// ReconcilePending is set when the ledger append for a committed
	// transaction ran out of retries and the sweep has to re-append it.
	ReconcilePending      bool       `json:"reconcile_pending"`
	OriginalTransactionID *uuid.UUID `json:"original_transaction_id,omitempty"`
}

// TransactionParams carries the caller-supplied fields of a new transaction.
type TransactionParams struct {
	SenderID              string
	ReceiverID            string
	Amount                decimal.Decimal
	PaymentMethod         string
	Type                  TransactionType
	Note                  string
	Location              string
	OriginalTransactionID *uuid.UUID
}

// NewTransaction validates p and returns a pending transaction stamped at now.
func NewTransaction(p TransactionParams, now time.Time) (*Transaction, error) {
	if err := ValidateAmount(p.Amount); err != nil {
		return nil, err
	}
	sender := strings.TrimSpace(p.SenderID)
	receiver := strings.TrimSpace(p.ReceiverID)
	if sender == "" || receiver == "" {
		return nil, ErrMissingParty
	}
	if sender == receiver {
		return nil, ErrSelfTransfer
	}
	txType := p.Type
	if txType == "" {
		txType = TransactionTypeTransfer
	}
	if !txType.Valid() {
		return nil, ErrInvalidType
	}

	return &Transaction{
		ID:                    uuid.New(),
		SenderID:              sender,
		ReceiverID:            receiver,
		Amount:                p.Amount,
		PaymentMethod:         p.PaymentMethod,
		Type:                  txType,
		Note:                  p.Note,
		Location:              p.Location,
		Timestamp:             NormalizeTime(now),
		Status:                TransactionStatusPending,
		OriginalTransactionID: p.OriginalTransactionID,
	}, nil
}

// ValidateAmount rejects non-positive amounts and amounts finer than a cent.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(MoneyScale)) {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeTime truncates t to the microsecond precision the stores keep.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Commit moves a pending transaction to committed.
func (t *Transaction) Commit() error {
	if t.Status != TransactionStatusPending {
		return ErrInvalidTransition
	}
	t.Status = TransactionStatusCommitted
	return nil
}

// MarkRolledBack moves a committed transaction to its terminal state.
func (t *Transaction) MarkRolledBack() error {
	if t.Status != TransactionStatusCommitted {
		return ErrInvalidTransition
	}
	t.Status = TransactionStatusRolledBack
	return nil
}

// Fail abandons a pending transaction.
func (t *Transaction) Fail() {
	if t.Status == TransactionStatusPending {
		t.Status = TransactionStatusFailed
	}
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusRolledBack || t.Status == TransactionStatusFailed
}

// Age returns how long ago the transaction was stamped.
func (t *Transaction) Age(now time.Time) time.Duration {
	return now.Sub(t.Timestamp)
}

// Involves reports whether userID is a party of the transaction.
func (t *Transaction) Involves(userID string) bool {
	return t.SenderID == userID || t.ReceiverID == userID
}
