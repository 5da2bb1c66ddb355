package postgres

import (
	"context"
	"fmt"

	"finguard-ledger/internal/core/domain"
)

// FraudFlagRepo implements ports.FraudFlagRepository.
type FraudFlagRepo struct {
	pool Pool
}

// NewFraudFlagRepo creates a new FraudFlagRepo.
func NewFraudFlagRepo(pool Pool) *FraudFlagRepo {
	return &FraudFlagRepo{pool: pool}
}

// Flag stores a flag unless the user already has one.
func (r *FraudFlagRepo) Flag(ctx context.Context, f *domain.FraudFlag) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO fraud_flags (user_id, reason, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		f.UserID, f.Reason, f.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert fraud flag: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
