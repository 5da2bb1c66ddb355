package postgres

import (
	"context"
	"errors"
	"fmt"
)

// ErrSchemaMissing is returned by the health check when the database answers
// but the ledger tables were never migrated.
var ErrSchemaMissing = errors.New("ledger schema not migrated")

// schemaCheckQuery checks the two tables every money movement writes.
const schemaCheckQuery = `SELECT to_regclass('public.ledger_entries') IS NOT NULL
	AND to_regclass('public.transactions') IS NOT NULL`

// HealthCheck checks PostgreSQL connectivity and schema presence.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Name() string { return "postgresql" }

// Ping runs the schema check. A reachable but empty database is unhealthy.
func (h *HealthCheck) Ping(ctx context.Context) error {
	var migrated bool
	if err := h.pool.QueryRow(ctx, schemaCheckQuery).Scan(&migrated); err != nil {
		return fmt.Errorf("postgres health check: %w", err)
	}
	if !migrated {
		return ErrSchemaMissing
	}
	return nil
}
