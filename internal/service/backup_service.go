package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// restoreAttempts bounds how often a reconciling restore is retried when the
// balance moves between reading it and settling the adjustment.
const restoreAttempts = 3

var errBalanceMoved = errors.New("balance changed during restore")

// BackupServiceImpl implements ports.BackupService.
type BackupServiceImpl struct {
	accounts   ports.AccountRepository
	backups    ports.BackupRepository
	transfers  ports.TransferService
	locks      ports.LockManager
	transactor ports.DBTransactor
	audit      ports.AuditService
	clock      clock.Clock
	reconcile  bool
	log        zerolog.Logger
}

// NewBackupService creates a new BackupServiceImpl. With reconcile set, a
// restore settles the difference as an ADJUSTMENT transfer against SYSTEM so
// the ledger keeps matching stored balances; otherwise it overwrites the
// balance directly.
func NewBackupService(
	accounts ports.AccountRepository,
	backups ports.BackupRepository,
	transfers ports.TransferService,
	locks ports.LockManager,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	clk clock.Clock,
	reconcile bool,
	log zerolog.Logger,
) *BackupServiceImpl {
	return &BackupServiceImpl{
		accounts:   accounts,
		backups:    backups,
		transfers:  transfers,
		locks:      locks,
		transactor: transactor,
		audit:      audit,
		clock:      clk,
		reconcile:  reconcile,
		log:        log,
	}
}

// BackupBalance snapshots the user's stored balance.
func (s *BackupServiceImpl) BackupBalance(ctx context.Context, userID, operationType, actorID string) (*domain.BalanceBackup, error) {
	userID = strings.TrimSpace(userID)
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if acc == nil {
		return nil, apperror.ErrNotFound("account")
	}

	backup, err := domain.NewBalanceBackup(userID, acc.Balance, operationType, actorID, s.clock.Now())
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if err := s.backups.Create(ctx, backup); err != nil {
		s.audit.Record(ctx, domain.AuditOperationBackup, userID, actorID, false, map[string]any{"error": err.Error()})
		return nil, apperror.ErrPersistenceFailure(fmt.Errorf("create backup: %w", err))
	}

	s.audit.Record(ctx, domain.AuditOperationBackup, userID, actorID, true, map[string]any{
		"backup_id":      backup.ID.String(),
		"balance":        backup.BalanceSnapshot.StringFixed(domain.MoneyScale),
		"operation_type": backup.OperationType,
	})
	s.log.Info().Str("user_id", userID).Str("backup_id", backup.ID.String()).Msg("balance backed up")
	return backup, nil
}

// RestoreBalance brings the user's balance back to a snapshot.
func (s *BackupServiceImpl) RestoreBalance(ctx context.Context, backupID uuid.UUID, reason, actorID string) (*ports.RestoreResult, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, apperror.Validation("actor_id is required")
	}
	if strings.TrimSpace(reason) == "" {
		reason = domain.DefaultRestoreReason
	}

	backup, err := s.backups.GetByID(ctx, backupID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get backup: %w", err))
	}
	if backup == nil {
		return nil, apperror.ErrNotFound("backup")
	}

	var adjustmentID *uuid.UUID
	if s.reconcile {
		adjustmentID, err = s.restoreByAdjustment(ctx, backup, reason)
	} else {
		err = s.restoreDirect(ctx, backup)
	}

	details := map[string]any{
		"backup_id": backup.ID.String(),
		"reason":    reason,
		"balance":   backup.BalanceSnapshot.StringFixed(domain.MoneyScale),
		"reconcile": s.reconcile,
	}
	if err != nil {
		details["error"] = err.Error()
		s.audit.Record(ctx, domain.AuditOperationRestore, backup.UserID, actorID, false, details)
		return nil, err
	}
	if adjustmentID != nil {
		details["adjustment_transaction_id"] = adjustmentID.String()
	}
	s.audit.Record(ctx, domain.AuditOperationRestore, backup.UserID, actorID, true, details)

	s.log.Info().
		Str("user_id", backup.UserID).
		Str("backup_id", backup.ID.String()).
		Bool("reconcile", s.reconcile).
		Msg("balance restored")

	return &ports.RestoreResult{
		Success:      true,
		Message:      fmt.Sprintf("Balance of %s restored to %s", backup.UserID, backup.BalanceSnapshot.StringFixed(domain.MoneyScale)),
		UserID:       backup.UserID,
		Balance:      backup.BalanceSnapshot,
		AdjustmentID: adjustmentID,
	}, nil
}

// restoreByAdjustment moves snapshot - current between the user and SYSTEM.
// The commit hook re-reads the balance inside the transfer and aborts if it
// moved in the meantime; the restore is then retried.
func (s *BackupServiceImpl) restoreByAdjustment(ctx context.Context, backup *domain.BalanceBackup, reason string) (*uuid.UUID, error) {
	for attempt := 0; attempt < restoreAttempts; attempt++ {
		acc, err := s.accounts.Get(ctx, backup.UserID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
		}
		if acc == nil {
			return nil, apperror.ErrNotFound("account")
		}

		delta := backup.BalanceSnapshot.Sub(acc.Balance)
		if delta.IsZero() {
			return nil, nil
		}

		req := ports.TransferRequest{
			SenderID:   domain.SystemAccountID,
			ReceiverID: backup.UserID,
			Amount:     delta,
			Note:       fmt.Sprintf("Restore of backup %s: %s", backup.ID, reason),
			Type:       domain.TransactionTypeAdjustment,
			OnCommit:   s.expectBalance(backup.UserID, backup.BalanceSnapshot),
		}
		if delta.IsNegative() {
			req.SenderID, req.ReceiverID, req.Amount = backup.UserID, domain.SystemAccountID, delta.Neg()
		}

		txn, err := s.transfers.ProcessTransfer(ctx, req)
		if errors.Is(err, errBalanceMoved) {
			s.log.Warn().Str("user_id", backup.UserID).Int("attempt", attempt+1).Msg("balance moved during restore, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return &txn.ID, nil
	}
	return nil, apperror.ErrLockTimeout(errBalanceMoved)
}

func (s *BackupServiceImpl) expectBalance(userID string, want decimal.Decimal) ports.CommitHook {
	return func(ctx context.Context, tx pgx.Tx, _ *domain.Transaction) error {
		acc, err := s.accounts.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return apperror.ErrPersistenceFailure(fmt.Errorf("re-read balance: %w", err))
		}
		if acc == nil || !acc.Balance.Equal(want) {
			return errBalanceMoved
		}
		return nil
	}
}

// restoreDirect overwrites the stored balance without touching the ledger.
func (s *BackupServiceImpl) restoreDirect(ctx context.Context, backup *domain.BalanceBackup) error {
	release, err := s.locks.Acquire(ctx, accountLockPrefix+backup.UserID)
	if err != nil {
		if errors.Is(err, ports.ErrLockTimeout) {
			return apperror.ErrLockTimeout(err)
		}
		return apperror.InternalError(fmt.Errorf("acquire account lock: %w", err))
	}
	defer release(ctx)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrPersistenceFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	acc, err := s.accounts.GetForUpdate(ctx, dbTx, backup.UserID)
	if err != nil {
		return apperror.ErrPersistenceFailure(fmt.Errorf("lock account: %w", err))
	}
	if acc == nil {
		return apperror.ErrNotFound("account")
	}
	if err := s.accounts.SetBalance(ctx, dbTx, backup.UserID, backup.BalanceSnapshot); err != nil {
		return apperror.ErrPersistenceFailure(fmt.Errorf("set balance: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.ErrPersistenceFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Warn().
		Str("user_id", backup.UserID).
		Str("from", acc.Balance.StringFixed(domain.MoneyScale)).
		Str("to", backup.BalanceSnapshot.StringFixed(domain.MoneyScale)).
		Msg("balance overwritten without ledger entry")
	return nil
}
