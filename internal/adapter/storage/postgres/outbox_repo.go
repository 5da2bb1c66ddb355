package postgres

import (
	"context"
	"fmt"

	"finguard-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a PostgreSQL-backed OutboxRepository.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Create writes an event in the caller's unit of work.
func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, ev *domain.OutboxEvent) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_events (id, event_type, aggregate_id, payload, status, attempts, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.EventType, ev.AggregateID, []byte(ev.Payload), string(ev.Status),
		ev.Attempts, ev.LastError, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert outbox event", err)
	}
	return nil
}

// ListPending returns the oldest undelivered events.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_type, aggregate_id, payload, status, attempts, last_error, created_at, updated_at
		 FROM outbox_events
		 WHERE status = 'PENDING'
		 ORDER BY created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var ev domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(
			&ev.ID, &ev.EventType, &ev.AggregateID, &payload, &ev.Status,
			&ev.Attempts, &ev.LastError, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkPublished records a successful delivery.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET status = 'PUBLISHED', attempts = attempts + 1, last_error = NULL, updated_at = now()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// MarkFailed records a failed delivery; the event stays PENDING until it
// has used up maxAttempts.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, lastError string, maxAttempts int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE outbox_events
		 SET attempts = attempts + 1,
		     last_error = $1,
		     status = CASE WHEN attempts + 1 >= $2 THEN 'FAILED' ELSE status END,
		     updated_at = now()
		 WHERE id = $3`, lastError, maxAttempts, id)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}
