package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditOperation names the kind of audited integrity operation.
type AuditOperation string

const (
	AuditOperationRollback     AuditOperation = "ROLLBACK"
	AuditOperationBackup       AuditOperation = "BACKUP"
	AuditOperationRestore      AuditOperation = "RESTORE"
	AuditOperationAutoRollback AuditOperation = "AUTO_ROLLBACK"
	AuditOperationMaintenance  AuditOperation = "MAINTENANCE"
)

// Valid reports whether op is a known audit operation.
func (op AuditOperation) Valid() bool {
	switch op {
	case AuditOperationRollback, AuditOperationBackup, AuditOperationRestore,
		AuditOperationAutoRollback, AuditOperationMaintenance:
		return true
	}
	return false
}

// AuditEntry is an append-only record of a rollback/backup/restore/sweep.
type AuditEntry struct {
	ID            uuid.UUID      `json:"id"`
	OperationType AuditOperation `json:"operation_type"`
	EntityID      string         `json:"entity_id"`
	ActorID       string         `json:"actor_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Success       bool           `json:"success"`
	Details       string         `json:"details,omitempty"` // JSON string
}

// NewAuditEntry validates op and encodes details as JSON.
func NewAuditEntry(op AuditOperation, entityID, actorID string, success bool, details map[string]any, now time.Time) (*AuditEntry, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("unknown audit operation %q", op)
	}
	if actorID == "" {
		return nil, errors.New("audit actor is required")
	}

	var encoded string
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("encode audit details: %w", err)
		}
		encoded = string(b)
	}

	return &AuditEntry{
		ID:            uuid.New(),
		OperationType: op,
		EntityID:      entityID,
		ActorID:       actorID,
		Timestamp:     NormalizeTime(now),
		Success:       success,
		Details:       encoded,
	}, nil
}
