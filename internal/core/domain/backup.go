package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultBackupOperation = "Manual admin backup"
	DefaultRestoreReason   = "Manual admin restore"
)

// BalanceBackup is an immutable point-in-time snapshot of a user's balance.
type BalanceBackup struct {
	ID              uuid.UUID       `json:"backup_id"`
	UserID          string          `json:"user_id"`
	BalanceSnapshot decimal.Decimal `json:"balance_snapshot"`
	OperationType   string          `json:"operation_type"`
	ActorID         string          `json:"actor_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewBalanceBackup validates and builds a BalanceBackup.
func NewBalanceBackup(userID string, snapshot decimal.Decimal, operationType, actorID string, now time.Time) (*BalanceBackup, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("backup user id is required")
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, errors.New("backup actor is required")
	}
	if operationType == "" {
		operationType = DefaultBackupOperation
	}
	return &BalanceBackup{
		ID:              uuid.New(),
		UserID:          userID,
		BalanceSnapshot: snapshot,
		OperationType:   operationType,
		ActorID:         actorID,
		CreatedAt:       NormalizeTime(now),
	}, nil
}
