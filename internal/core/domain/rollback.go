package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRollbackWindow is how long a committed transaction stays reversible.
const DefaultRollbackWindow = 72 * time.Hour

var ErrRollbackActorRequired = errors.New("rollback actor is required")

// RollbackRecord links a rolled-back transaction to its compensating refund.
// At most one record exists per transaction.
type RollbackRecord struct {
	TransactionID             uuid.UUID `json:"transaction_id"`
	Reason                    string    `json:"reason"`
	ActorID                   string    `json:"actor_id"`
	Timestamp                 time.Time `json:"timestamp"`
	CompensatingTransactionID uuid.UUID `json:"compensating_transaction_id"`
}

// NewRollbackRecord validates and builds a RollbackRecord.
func NewRollbackRecord(txID, compensatingID uuid.UUID, reason, actorID string, now time.Time) (*RollbackRecord, error) {
	if txID == uuid.Nil || compensatingID == uuid.Nil {
		return nil, errors.New("rollback record needs both transaction ids")
	}
	if txID == compensatingID {
		return nil, errors.New("compensating transaction must differ from the original")
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, ErrRollbackActorRequired
	}
	return &RollbackRecord{
		TransactionID:             txID,
		Reason:                    reason,
		ActorID:                   actorID,
		Timestamp:                 NormalizeTime(now),
		CompensatingTransactionID: compensatingID,
	}, nil
}

// EligibilityStatus classifies whether a transaction can be rolled back.
type EligibilityStatus string

const (
	EligibilityNotFound   EligibilityStatus = "NOT_FOUND"
	EligibilityRolledBack EligibilityStatus = "ROLLED_BACK"
	EligibilityExpired    EligibilityStatus = "EXPIRED"
	EligibilityEligible   EligibilityStatus = "ELIGIBLE"
	// Refunds and adjustments compensate other transactions and are final.
	EligibilityNotReversible EligibilityStatus = "NOT_REVERSIBLE"
)

// Eligibility is the answer to "can this transaction be rolled back now".
type Eligibility struct {
	Status      EligibilityStatus `json:"status"`
	CanRollback bool              `json:"can_rollback"`
	Reason      string            `json:"reason"`
}

// EvaluateEligibility applies the rollback rules: the transaction must exist,
// must not already have a RollbackRecord, must not itself be compensating,
// and must be no older than window.
func EvaluateEligibility(tx *Transaction, hasRecord bool, now time.Time, window time.Duration) Eligibility {
	switch {
	case tx == nil:
		return Eligibility{Status: EligibilityNotFound, Reason: "Transaction not found"}
	case hasRecord || tx.Status == TransactionStatusRolledBack:
		return Eligibility{Status: EligibilityRolledBack, Reason: "Transaction has already been rolled back"}
	case tx.Status != TransactionStatusCommitted:
		return Eligibility{Status: EligibilityNotFound, Reason: "Transaction is not committed"}
	case tx.Type == TransactionTypeRefund || tx.Type == TransactionTypeAdjustment:
		return Eligibility{Status: EligibilityNotReversible, Reason: "Compensating transactions cannot be rolled back"}
	case tx.Age(now) > window:
		return Eligibility{Status: EligibilityExpired, Reason: "Transaction is older than the rollback window"}
	}
	return Eligibility{Status: EligibilityEligible, CanRollback: true, Reason: "Transaction can be rolled back"}
}
