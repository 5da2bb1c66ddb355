package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyTTL is how long a client key keeps returning its first result.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyLog stores the response of a transfer submitted with an
// idempotency key, so a retried submission returns the first result.
type IdempotencyLog struct {
	Key           string    `json:"key"` // transfer:<sender>:<client key>
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NewIdempotencyLog records response for key, valid for IdempotencyTTL.
func NewIdempotencyLog(key string, transactionID uuid.UUID, response []byte, now time.Time) *IdempotencyLog {
	now = NormalizeTime(now)
	return &IdempotencyLog{
		Key:           key,
		TransactionID: transactionID,
		ResponseJSON:  response,
		CreatedAt:     now,
		ExpiresAt:     now.Add(IdempotencyTTL),
	}
}

// Expired reports whether the key may be reused at now.
func (l *IdempotencyLog) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// BuildTransferIdempotencyKey scopes a client key to its sender.
func BuildTransferIdempotencyKey(senderID, clientKey string) string {
	return "transfer:" + senderID + ":" + clientKey
}
