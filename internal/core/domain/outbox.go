package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox event.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// EventTransferCommitted is emitted for every committed transaction.
const EventTransferCommitted = "transfer.committed"

// OutboxEvent is a message written in the same unit of work as the state
// change it describes and delivered to the mirror afterwards.
type OutboxEvent struct {
	ID          uuid.UUID       `json:"id"`
	EventType   string          `json:"event_type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	Status      OutboxStatus    `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewOutboxEvent encodes payload and returns a pending event.
func NewOutboxEvent(eventType string, aggregateID uuid.UUID, payload any, now time.Time) (*OutboxEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode outbox payload: %w", err)
	}
	now = NormalizeTime(now)
	return &OutboxEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     b,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MirrorTransfer is the payload of EventTransferCommitted.
type MirrorTransfer struct {
	TransactionID string `json:"transaction_id"`
	SenderID      string `json:"sender_id"`
	ReceiverID    string `json:"receiver_id"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
	Timestamp     int64  `json:"timestamp"`
}

// NewMirrorTransfer projects a transaction onto the mirror payload.
func NewMirrorTransfer(tx *Transaction) MirrorTransfer {
	return MirrorTransfer{
		TransactionID: tx.ID.String(),
		SenderID:      tx.SenderID,
		ReceiverID:    tx.ReceiverID,
		Amount:        tx.Amount.StringFixed(MoneyScale),
		Type:          string(tx.Type),
		Timestamp:     tx.Timestamp.Unix(),
	}
}
