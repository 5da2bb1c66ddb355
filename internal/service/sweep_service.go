package service

import (
	"context"
	"fmt"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/clock"

	"github.com/rs/zerolog"
)

const (
	DefaultSweepHours     = 24
	DefaultSweepActor     = "system"
	defaultSweepBatchSize = 500
	reconcileLockPrefix   = "reconcile:"
)

// SweepServiceImpl implements ports.SweepService: it re-appends ledger
// entries left out by exhausted appends and rolls back stale transactions.
type SweepServiceImpl struct {
	txRepo     ports.TransactionRepository
	ledger     ports.LedgerService
	rollbacks  ports.RollbackService
	audit      ports.AuditService
	locks      ports.LockManager
	transactor ports.DBTransactor
	clock      clock.Clock
	window     time.Duration
	batchSize  int
	log        zerolog.Logger
}

// NewSweepService creates a new SweepServiceImpl. window is the rollback
// window; transactions older than it are no longer candidates.
func NewSweepService(
	txRepo ports.TransactionRepository,
	ledger ports.LedgerService,
	rollbacks ports.RollbackService,
	audit ports.AuditService,
	locks ports.LockManager,
	transactor ports.DBTransactor,
	clk clock.Clock,
	window time.Duration,
	batchSize int,
	log zerolog.Logger,
) *SweepServiceImpl {
	if window <= 0 {
		window = domain.DefaultRollbackWindow
	}
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &SweepServiceImpl{
		txRepo:     txRepo,
		ledger:     ledger,
		rollbacks:  rollbacks,
		audit:      audit,
		locks:      locks,
		transactor: transactor,
		clock:      clk,
		window:     window,
		batchSize:  batchSize,
		log:        log,
	}
}

// AutoRollbackStale runs one sweep. Failures of single items are logged and
// counted; only failures to list candidates abort the sweep.
func (s *SweepServiceImpl) AutoRollbackStale(ctx context.Context, hoursThreshold int, actorID string) (*ports.SweepResult, error) {
	if hoursThreshold <= 0 {
		hoursThreshold = DefaultSweepHours
	}
	if actorID == "" {
		actorID = DefaultSweepActor
	}

	if _, err := s.audit.FlushBacklog(ctx); err != nil {
		s.log.Warn().Err(err).Msg("audit backlog not fully flushed")
	}

	result := &ports.SweepResult{}

	reconciled, failed, err := s.reconcile(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	result.ReconciledCount = reconciled
	result.FailedCount += failed

	now := s.clock.Now()
	stale, err := s.txRepo.ListStale(ctx, now.Add(-s.window), now.Add(-time.Duration(hoursThreshold)*time.Hour), s.batchSize)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list stale transactions: %w", err))
	}

	reason := fmt.Sprintf("Auto-rollback: stale transaction older than %dh", hoursThreshold)
	for _, txn := range stale {
		if err := ctx.Err(); err != nil {
			break
		}
		if _, err := s.rollbacks.Rollback(ctx, txn.ID, reason, actorID); err != nil {
			result.FailedCount++
			s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("auto-rollback failed, skipping")
			continue
		}
		result.RolledBackCount++
	}

	result.Message = fmt.Sprintf("Rolled back %d stale transaction(s) older than %dh, reconciled %d, %d failed",
		result.RolledBackCount, hoursThreshold, result.ReconciledCount, result.FailedCount)

	s.audit.Record(ctx, domain.AuditOperationAutoRollback, "sweep", actorID, true, map[string]any{
		"hours_threshold":   hoursThreshold,
		"candidates":        len(stale),
		"rolled_back_count": result.RolledBackCount,
		"reconciled_count":  result.ReconciledCount,
		"failed_count":      result.FailedCount,
	})

	s.log.Info().
		Int("rolled_back", result.RolledBackCount).
		Int("reconciled", result.ReconciledCount).
		Int("failed", result.FailedCount).
		Msg("sweep finished")

	return result, nil
}

// reconcile appends missing ledger entries for reconcile-pending transactions.
func (s *SweepServiceImpl) reconcile(ctx context.Context) (reconciled, failed int, err error) {
	pending, err := s.txRepo.ListReconcilePending(ctx, s.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list reconcile pending: %w", err)
	}

	for i := range pending {
		txn := &pending[i]
		if err := s.reconcileOne(ctx, txn); err != nil {
			failed++
			s.log.Error().Err(err).Str("tx_id", txn.ID.String()).Msg("reconciliation failed")
			continue
		}
		reconciled++
	}
	return reconciled, failed, nil
}

func (s *SweepServiceImpl) reconcileOne(ctx context.Context, txn *domain.Transaction) error {
	release, ok, err := s.locks.TryAcquire(ctx, reconcileLockPrefix+txn.ID.String())
	if err != nil {
		return fmt.Errorf("acquire reconcile guard: %w", err)
	}
	if !ok {
		return fmt.Errorf("reconciliation of %s already running", txn.ID)
	}
	defer release(ctx)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	current, err := s.txRepo.GetByIDForUpdate(ctx, dbTx, txn.ID)
	if err != nil {
		return fmt.Errorf("lock transaction: %w", err)
	}
	if current == nil || !current.ReconcilePending {
		return nil
	}

	entries, err := s.ledger.EntriesForTransaction(ctx, txn.ID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		if _, err := s.ledger.AppendTransfer(ctx, dbTx, current); err != nil {
			return fmt.Errorf("append ledger entries: %w", err)
		}
	}
	if err := s.txRepo.SetReconcilePending(ctx, dbTx, txn.ID, false); err != nil {
		return fmt.Errorf("clear reconcile flag: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reconciliation: %w", err)
	}

	s.log.Info().Str("tx_id", txn.ID.String()).Msg("ledger entries reconciled")
	return nil
}
