package postgres

import (
	"context"
	"fmt"

	"finguard-ledger/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository. The table is insert-only.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a PostgreSQL-backed AuditRepository.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Create appends an audit entry.
func (r *AuditRepo) Create(ctx context.Context, e *domain.AuditEntry) error {
	var details *string
	if e.Details != "" {
		details = &e.Details
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_log (id, operation_type, entity_id, actor_id, timestamp, success, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, string(e.OperationType), e.EntityID, e.ActorID, e.Timestamp, e.Success, details,
	)
	if err != nil {
		return wrapWriteErr("insert audit entry", err)
	}
	return nil
}

// List returns the newest entries first, optionally filtered by operation.
func (r *AuditRepo) List(ctx context.Context, limit int, op *domain.AuditOperation) ([]domain.AuditEntry, error) {
	query := `SELECT id, operation_type, entity_id, actor_id, timestamp, success, COALESCE(details::text, '')
		FROM audit_log`
	args := []any{}
	if op != nil {
		query += ` WHERE operation_type = $1`
		args = append(args, string(*op))
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.OperationType, &e.EntityID, &e.ActorID, &e.Timestamp, &e.Success, &e.Details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}
