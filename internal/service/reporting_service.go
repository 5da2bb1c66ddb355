package service

import (
	"context"
	"fmt"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 10
	defaultFailedLimit  = 50
	maxPageLimit        = 100
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	txRepo    ports.TransactionRepository
	accounts  ports.AccountRepository
	ledger    ports.LedgerService
	rollbacks ports.RollbackService
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	txRepo ports.TransactionRepository,
	accounts ports.AccountRepository,
	ledger ports.LedgerService,
	rollbacks ports.RollbackService,
) ports.ReportingService {
	return &reportingService{
		txRepo:    txRepo,
		accounts:  accounts,
		ledger:    ledger,
		rollbacks: rollbacks,
	}
}

// GetTransactionStatus returns a transaction with its rollback eligibility.
func (s *reportingService) GetTransactionStatus(ctx context.Context, transactionID uuid.UUID) (*ports.TransactionStatusView, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	elig, err := s.rollbacks.CheckEligibility(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return &ports.TransactionStatusView{Transaction: txn, Eligibility: *elig}, nil
}

// GetBalance compares the stored balance with the ledger-derived one.
func (s *reportingService) GetBalance(ctx context.Context, userID string) (*ports.BalanceView, error) {
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if acc == nil {
		return nil, apperror.ErrNotFound("account")
	}

	ledgerBalance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return &ports.BalanceView{
		UserID:     userID,
		Stored:     acc.Balance,
		Ledger:     ledgerBalance,
		Consistent: acc.Balance.Equal(ledgerBalance),
	}, nil
}

// TransactionHistory returns a page of the user's transactions.
func (s *reportingService) TransactionHistory(ctx context.Context, userID string, limit, offset int) ([]ports.TransactionHistoryItem, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.txRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return items, nil
}

// FailedTransactions lists committed transactions still waiting for their
// ledger entries.
func (s *reportingService) FailedTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultFailedLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	txns, err := s.txRepo.ListReconcilePending(ctx, limit)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return txns, nil
}

// VerifyTransaction checks that a transaction has exactly its debit and
// credit entries on the chain, each with an intact hash.
func (s *reportingService) VerifyTransaction(ctx context.Context, transactionID uuid.UUID) (*ports.TransactionVerification, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	entries, err := s.ledger.EntriesForTransaction(ctx, transactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read ledger entries: %w", err))
	}

	return &ports.TransactionVerification{
		TransactionID: transactionID,
		Entries:       entries,
		Verified:      entriesMatch(txn, entries),
	}, nil
}

func entriesMatch(txn *domain.Transaction, entries []domain.LedgerEntry) bool {
	if len(entries) != 2 {
		return false
	}
	var debit, credit bool
	for i := range entries {
		e := &entries[i]
		if !e.HashValid() {
			return false
		}
		switch {
		case e.CounterpartyID == txn.SenderID && e.SignedAmount.Equal(txn.Amount.Neg()):
			debit = true
		case e.CounterpartyID == txn.ReceiverID && e.SignedAmount.Equal(txn.Amount):
			credit = true
		}
	}
	return debit && credit
}
