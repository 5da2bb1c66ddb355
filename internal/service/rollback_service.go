package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	rollbackLockPrefix    = "rollback:"
	defaultRollbackReason = "Manual admin rollback"
)

// RollbackServiceImpl implements ports.RollbackService. A rollback is a
// REFUND transfer whose unit of work also writes the RollbackRecord, so the
// record's uniqueness is what stops a second reversal.
type RollbackServiceImpl struct {
	txRepo    ports.TransactionRepository
	records   ports.RollbackRepository
	transfers ports.TransferService
	locks     ports.LockManager
	audit     ports.AuditService
	clock     clock.Clock
	window    time.Duration
	log       zerolog.Logger
}

// NewRollbackService creates a new RollbackServiceImpl.
func NewRollbackService(
	txRepo ports.TransactionRepository,
	records ports.RollbackRepository,
	transfers ports.TransferService,
	locks ports.LockManager,
	audit ports.AuditService,
	clk clock.Clock,
	window time.Duration,
	log zerolog.Logger,
) *RollbackServiceImpl {
	if window <= 0 {
		window = domain.DefaultRollbackWindow
	}
	return &RollbackServiceImpl{
		txRepo:    txRepo,
		records:   records,
		transfers: transfers,
		locks:     locks,
		audit:     audit,
		clock:     clk,
		window:    window,
		log:       log,
	}
}

// CheckEligibility reports whether a transaction can be rolled back now.
func (s *RollbackServiceImpl) CheckEligibility(ctx context.Context, transactionID uuid.UUID) (*domain.Eligibility, error) {
	_, elig, err := s.eligibility(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return &elig, nil
}

func (s *RollbackServiceImpl) eligibility(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, domain.Eligibility, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, domain.Eligibility{}, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	hasRecord := false
	if txn != nil {
		rec, err := s.records.GetByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, domain.Eligibility{}, apperror.InternalError(fmt.Errorf("get rollback record: %w", err))
		}
		hasRecord = rec != nil
	}
	return txn, domain.EvaluateEligibility(txn, hasRecord, s.clock.Now(), s.window), nil
}

// Rollback reverses a committed transaction with a compensating REFUND.
func (s *RollbackServiceImpl) Rollback(ctx context.Context, transactionID uuid.UUID, reason, actorID string) (*ports.RollbackResult, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperror.Validation("actor_id is required")
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultRollbackReason
	}

	release, ok, err := s.locks.TryAcquire(ctx, rollbackLockPrefix+transactionID.String())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("acquire rollback guard: %w", err))
	}
	if !ok {
		return nil, apperror.ErrConcurrentRollback()
	}
	defer release(ctx)

	orig, elig, err := s.eligibility(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	switch elig.Status {
	case domain.EligibilityNotFound:
		return nil, apperror.ErrNotFound("transaction")
	case domain.EligibilityRolledBack:
		return nil, apperror.ErrAlreadyRolledBack()
	case domain.EligibilityExpired:
		return nil, apperror.ErrWindowExpired()
	case domain.EligibilityNotReversible:
		return nil, apperror.ErrNotReversible()
	}

	refund, err := s.transfers.ProcessTransfer(ctx, ports.TransferRequest{
		SenderID:              orig.ReceiverID,
		ReceiverID:            orig.SenderID,
		Amount:                orig.Amount,
		PaymentMethod:         orig.PaymentMethod,
		Note:                  fmt.Sprintf("Rollback of %s: %s", orig.ID, reason),
		Type:                  domain.TransactionTypeRefund,
		OriginalTransactionID: &orig.ID,
		OnCommit:              s.linkRefund(orig.ID, reason, actorID),
	})
	if err != nil {
		s.audit.Record(ctx, domain.AuditOperationRollback, transactionID.String(), actorID, false, map[string]any{
			"reason": reason,
			"error":  err.Error(),
		})
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditOperationRollback, transactionID.String(), actorID, true, map[string]any{
		"reason":                      reason,
		"amount":                      orig.Amount.StringFixed(domain.MoneyScale),
		"compensating_transaction_id": refund.ID.String(),
	})

	s.log.Info().
		Str("tx_id", transactionID.String()).
		Str("refund_tx_id", refund.ID.String()).
		Str("actor_id", actorID).
		Msg("transaction rolled back")

	return &ports.RollbackResult{
		Success:                   true,
		Message:                   fmt.Sprintf("Transaction %s rolled back", transactionID),
		CompensatingTransactionID: refund.ID,
	}, nil
}

// linkRefund returns the hook that records the rollback inside the refund's
// unit of work.
func (s *RollbackServiceImpl) linkRefund(origID uuid.UUID, reason, actorID string) ports.CommitHook {
	return func(ctx context.Context, tx pgx.Tx, refund *domain.Transaction) error {
		rec, err := domain.NewRollbackRecord(origID, refund.ID, reason, actorID, s.clock.Now())
		if err != nil {
			return apperror.InternalError(err)
		}
		if err := s.records.Create(ctx, tx, rec); err != nil {
			if errors.Is(err, ports.ErrConflict) {
				return apperror.ErrAlreadyRolledBack()
			}
			return apperror.ErrPersistenceFailure(fmt.Errorf("create rollback record: %w", err))
		}

		orig, err := s.txRepo.GetByIDForUpdate(ctx, tx, origID)
		if err != nil {
			return apperror.ErrPersistenceFailure(fmt.Errorf("lock original transaction: %w", err))
		}
		if orig == nil {
			return apperror.ErrNotFound("transaction")
		}
		if err := orig.MarkRolledBack(); err != nil {
			return apperror.ErrAlreadyRolledBack()
		}
		if err := s.txRepo.UpdateStatus(ctx, tx, origID, orig.Status); err != nil {
			return apperror.ErrPersistenceFailure(fmt.Errorf("mark original rolled back: %w", err))
		}
		return nil
	}
}
