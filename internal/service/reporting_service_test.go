package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reportingMocks struct {
	txRepo    *mocks.MockTransactionRepository
	accounts  *mocks.MockAccountRepository
	ledger    *mocks.MockLedgerService
	rollbacks *mocks.MockRollbackService
}

func newReportingWithMocks(t *testing.T) (ports.ReportingService, reportingMocks) {
	ctrl := gomock.NewController(t)
	m := reportingMocks{
		txRepo:    mocks.NewMockTransactionRepository(ctrl),
		accounts:  mocks.NewMockAccountRepository(ctrl),
		ledger:    mocks.NewMockLedgerService(ctrl),
		rollbacks: mocks.NewMockRollbackService(ctrl),
	}
	return NewReportingService(m.txRepo, m.accounts, m.ledger, m.rollbacks), m
}

func TestReportingService_GetTransactionStatus(t *testing.T) {
	svc, m := newReportingWithMocks(t)
	ctx := context.Background()
	txn := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusCommitted}

	m.txRepo.EXPECT().GetByID(ctx, txn.ID).Return(txn, nil)
	m.rollbacks.EXPECT().CheckEligibility(ctx, txn.ID).Return(&domain.Eligibility{
		Status: domain.EligibilityEligible, CanRollback: true,
	}, nil)

	view, err := svc.GetTransactionStatus(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn, view.Transaction)
	assert.True(t, view.Eligibility.CanRollback)
}

func TestReportingService_GetTransactionStatus_NotFound(t *testing.T) {
	svc, m := newReportingWithMocks(t)
	ctx := context.Background()
	id := uuid.New()

	m.txRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)
	_, err := svc.GetTransactionStatus(ctx, id)
	assertAppError(t, err, "RBK_001")

	m.txRepo.EXPECT().GetByID(ctx, id).Return(nil, errors.New("db down"))
	_, err = svc.GetTransactionStatus(ctx, id)
	assertAppError(t, err, "SYS_001")
}

func TestReportingService_GetBalance(t *testing.T) {
	svc, m := newReportingWithMocks(t)
	ctx := context.Background()

	m.accounts.EXPECT().Get(ctx, "alice").Return(&domain.Account{UserID: "alice", Balance: money("60.00")}, nil)
	m.ledger.EXPECT().GetBalance(ctx, "alice").Return(money("60"), nil)
	view, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, view.Consistent)

	m.accounts.EXPECT().Get(ctx, "alice").Return(&domain.Account{UserID: "alice", Balance: money("60.00")}, nil)
	m.ledger.EXPECT().GetBalance(ctx, "alice").Return(money("59.99"), nil)
	view, err = svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, view.Consistent)

	m.accounts.EXPECT().Get(ctx, "ghost").Return(nil, nil)
	_, err = svc.GetBalance(ctx, "ghost")
	assertAppError(t, err, "RBK_001")
}

func TestReportingService_PagingDefaults(t *testing.T) {
	svc, m := newReportingWithMocks(t)
	ctx := context.Background()

	m.txRepo.EXPECT().ListByUser(ctx, "alice", 10, 0).Return(nil, nil)
	_, err := svc.TransactionHistory(ctx, "alice", 0, -4)
	require.NoError(t, err)

	m.txRepo.EXPECT().ListByUser(ctx, "alice", 100, 20).Return(nil, nil)
	_, err = svc.TransactionHistory(ctx, "alice", 500, 20)
	require.NoError(t, err)

	m.txRepo.EXPECT().ListReconcilePending(ctx, 50).Return([]domain.Transaction{}, nil)
	_, err = svc.FailedTransactions(ctx, 0)
	require.NoError(t, err)

	m.txRepo.EXPECT().ListReconcilePending(ctx, 100).Return(nil, errors.New("db down"))
	_, err = svc.FailedTransactions(ctx, 1000)
	assertAppError(t, err, "SYS_001")
}

func TestReportingService_VerifyTransaction(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "0")
	ctx := context.Background()

	txn, err := h.transfer("alice", "bob", "40.00")
	require.NoError(t, err)

	v, err := h.reporting.VerifyTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Len(t, v.Entries, 2)

	// Break the credit leg's hash.
	all := h.entries(t)
	h.chain.Tamper(len(all)-1, func(e *domain.LedgerEntry) { e.SignedAmount = money("400.00") })

	v, err = h.reporting.VerifyTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, v.Verified)

	_, err = h.reporting.VerifyTransaction(ctx, uuid.New())
	assertAppError(t, err, "RBK_001")
}

func TestReportingService_HistoryShowsRollback(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "0")
	ctx := context.Background()

	txn, err := h.transfer("alice", "bob", "25.00")
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	res, err := h.rollbacks.Rollback(ctx, txn.ID, "customer dispute", "admin")
	require.NoError(t, err)

	items, err := h.reporting.TransactionHistory(ctx, "alice", 10, 0)
	require.NoError(t, err)
	// deposit, transfer, refund
	require.Len(t, items, 3)

	var original *ports.TransactionHistoryItem
	for i := range items {
		if items[i].Transaction.ID == txn.ID {
			original = &items[i]
		}
	}
	require.NotNil(t, original)
	assert.Equal(t, domain.TransactionStatusRolledBack, original.Transaction.Status)
	require.NotNil(t, original.RollbackReason)
	assert.Equal(t, "customer dispute", *original.RollbackReason)
	require.NotNil(t, original.CompensatingID)
	assert.Equal(t, res.CompensatingTransactionID, *original.CompensatingID)
}
