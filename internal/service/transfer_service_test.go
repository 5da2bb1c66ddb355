package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/internal/core/ports/mocks"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type transferMocks struct {
	accounts   *mocks.MockAccountRepository
	txRepo     *mocks.MockTransactionRepository
	ledger     *mocks.MockLedgerService
	validator  *mocks.MockValidationService
	outbox     *mocks.MockOutboxRepository
	idempRepo  *mocks.MockIdempotencyRepository
	idempCache *mocks.MockIdempotencyCache
	locks      *mocks.MockLockManager
	transactor *mocks.MockDBTransactor
}

func newTransferWithMocks(t *testing.T) (*TransferServiceImpl, transferMocks) {
	ctrl := gomock.NewController(t)
	m := transferMocks{
		accounts:   mocks.NewMockAccountRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		ledger:     mocks.NewMockLedgerService(ctrl),
		validator:  mocks.NewMockValidationService(ctrl),
		outbox:     mocks.NewMockOutboxRepository(ctrl),
		idempRepo:  mocks.NewMockIdempotencyRepository(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		locks:      mocks.NewMockLockManager(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
	}
	svc := NewTransferService(TransferDeps{
		Accounts:     m.accounts,
		Transactions: m.txRepo,
		Ledger:       m.ledger,
		Validator:    m.validator,
		Outbox:       m.outbox,
		IdempRepo:    m.idempRepo,
		IdempCache:   m.idempCache,
		Locks:        m.locks,
		Transactor:   m.transactor,
		Clock:        clock.NewFake(testNow),
	}, noRetry(), newTestLogger())
	return svc, m
}

func noopRelease(context.Context) {}

// expectLockedParties sets up existence checks, locks and the row reads for
// a transfer between alice and bob.
func (m transferMocks) expectLockedParties(ctx context.Context, aliceBalance, bobBalance string) {
	m.accounts.EXPECT().Exists(ctx, "bob").Return(true, nil)
	m.accounts.EXPECT().Exists(ctx, "alice").Return(true, nil)
	m.locks.EXPECT().Acquire(ctx, "account:alice", "account:bob").Return(ports.Release(noopRelease), nil)
	m.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	gomock.InOrder(
		m.accounts.EXPECT().GetForUpdate(ctx, gomock.Any(), "alice").
			Return(&domain.Account{UserID: "alice", Balance: money(aliceBalance)}, nil),
		m.accounts.EXPECT().GetForUpdate(ctx, gomock.Any(), "bob").
			Return(&domain.Account{UserID: "bob", Balance: money(bobBalance)}, nil),
	)
}

func TestProcessTransfer_Success(t *testing.T) {
	svc, m := newTransferWithMocks(t)
	ctx := context.Background()

	m.idempCache.EXPECT().Get(ctx, "transfer:alice:key-1").Return(nil, nil)
	m.idempRepo.EXPECT().Get(ctx, "transfer:alice:key-1").Return(nil, nil).Times(2)
	m.expectLockedParties(ctx, "100.00", "10.00")
	m.validator.EXPECT().PreCheck(ctx, "alice", money("100.00"), money("40.00")).Return(nil)
	m.validator.EXPECT().PreCheck(ctx, "bob", money("10.00"), money("40.00")).Return(nil)
	m.accounts.EXPECT().AdjustBalance(ctx, gomock.Any(), "alice", money("-40.00")).Return(money("60.00"), nil)
	m.validator.EXPECT().PostCheck("alice", money("100.00"), money("-40.00"), money("60.00")).Return(nil)
	m.accounts.EXPECT().AdjustBalance(ctx, gomock.Any(), "bob", money("40.00")).Return(money("50.00"), nil)
	m.validator.EXPECT().PostCheck("bob", money("10.00"), money("40.00"), money("50.00")).Return(nil)
	m.ledger.EXPECT().AppendTransfer(ctx, gomock.Any(), gomock.Any()).Return([]domain.LedgerEntry{{}, {}}, nil)
	m.txRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			assert.Equal(t, domain.TransactionStatusCommitted, txn.Status)
			assert.False(t, txn.ReconcilePending)
			return nil
		},
	)
	m.outbox.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.OutboxEvent) error {
			assert.Equal(t, domain.EventTransferCommitted, e.EventType)
			return nil
		},
	)
	m.idempRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
	m.idempCache.EXPECT().Set(ctx, "transfer:alice:key-1", gomock.Any(), 24*time.Hour).Return(errors.New("redis down"))

	txn, err := svc.ProcessTransfer(ctx, ports.TransferRequest{
		SenderID:       "alice",
		ReceiverID:     "bob",
		Amount:         money("40.00"),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCommitted, txn.Status)
	assert.Equal(t, domain.TransactionTypeTransfer, txn.Type)
	assert.Equal(t, testNow, txn.Timestamp)
}

func TestProcessTransfer_RejectsBadInput(t *testing.T) {
	svc, _ := newTransferWithMocks(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ports.TransferRequest
		code string
	}{
		{"negative amount", ports.TransferRequest{SenderID: "a", ReceiverID: "b", Amount: money("-5.00")}, "TRX_001"},
		{"zero amount", ports.TransferRequest{SenderID: "a", ReceiverID: "b", Amount: decimal.Zero}, "TRX_001"},
		{"sub-cent amount", ports.TransferRequest{SenderID: "a", ReceiverID: "b", Amount: money("1.005")}, "TRX_001"},
		{"missing receiver", ports.TransferRequest{SenderID: "a", ReceiverID: "  ", Amount: money("1")}, "VAL_001"},
		{"self transfer", ports.TransferRequest{SenderID: "a", ReceiverID: " a ", Amount: money("1")}, "TRX_002"},
		{"unknown type", ports.TransferRequest{SenderID: "a", ReceiverID: "b", Amount: money("1"), Type: "GIFT"}, "VAL_001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ProcessTransfer(ctx, tt.req)
			assertAppError(t, err, tt.code)
		})
	}
}

func TestProcessTransfer_UnknownParties(t *testing.T) {
	svc, m := newTransferWithMocks(t)
	ctx := context.Background()
	req := ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("1.00")}

	m.accounts.EXPECT().Exists(ctx, "bob").Return(false, nil)
	_, err := svc.ProcessTransfer(ctx, req)
	assertAppError(t, err, "TRX_003")

	m.accounts.EXPECT().Exists(ctx, "bob").Return(true, nil)
	m.accounts.EXPECT().Exists(ctx, "alice").Return(false, nil)
	_, err = svc.ProcessTransfer(ctx, req)
	assertAppError(t, err, "RBK_001")
}

func TestProcessTransfer_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	prior := &domain.Transaction{
		ID: uuid.New(), SenderID: "alice", ReceiverID: "bob", Amount: money("40.00"),
		Type: domain.TransactionTypeTransfer, Status: domain.TransactionStatusCommitted, Timestamp: testNow,
	}
	body, err := json.Marshal(prior)
	require.NoError(t, err)
	req := ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("40.00"), IdempotencyKey: "k"}

	t.Run("cache hit", func(t *testing.T) {
		svc, m := newTransferWithMocks(t)
		m.idempCache.EXPECT().Get(ctx, "transfer:alice:k").Return(body, nil)

		txn, err := svc.ProcessTransfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, prior.ID, txn.ID)
	})

	t.Run("cache error falls through to db", func(t *testing.T) {
		svc, m := newTransferWithMocks(t)
		m.idempCache.EXPECT().Get(ctx, "transfer:alice:k").Return(nil, errors.New("redis down"))
		m.idempRepo.EXPECT().Get(ctx, "transfer:alice:k").Return(&domain.IdempotencyLog{
			Key: "transfer:alice:k", TransactionID: prior.ID, ResponseJSON: body,
		}, nil)

		txn, err := svc.ProcessTransfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, prior.ID, txn.ID)
	})
}

func TestProcessTransfer_DuplicateKeyReplaysWinner(t *testing.T) {
	ctx := context.Background()
	winner := &domain.Transaction{
		ID: uuid.New(), SenderID: "alice", ReceiverID: "bob", Amount: money("40.00"),
		Type: domain.TransactionTypeTransfer, Status: domain.TransactionStatusCommitted, Timestamp: testNow,
	}
	body, err := json.Marshal(winner)
	require.NoError(t, err)
	stored := &domain.IdempotencyLog{Key: "transfer:alice:k", TransactionID: winner.ID, ResponseJSON: body}
	req := ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("40.00"), IdempotencyKey: "k"}

	t.Run("winner committed while waiting for locks", func(t *testing.T) {
		svc, m := newTransferWithMocks(t)
		m.idempCache.EXPECT().Get(ctx, "transfer:alice:k").Return(nil, nil)
		gomock.InOrder(
			m.idempRepo.EXPECT().Get(ctx, "transfer:alice:k").Return(nil, nil),
			m.idempRepo.EXPECT().Get(ctx, "transfer:alice:k").Return(stored, nil),
		)
		m.accounts.EXPECT().Exists(ctx, "bob").Return(true, nil)
		m.accounts.EXPECT().Exists(ctx, "alice").Return(true, nil)
		m.locks.EXPECT().Acquire(ctx, "account:alice", "account:bob").Return(ports.Release(noopRelease), nil)

		txn, err := svc.ProcessTransfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, winner.ID, txn.ID)
	})

	t.Run("log insert conflicts", func(t *testing.T) {
		svc, m := newTransferWithMocks(t)
		m.idempCache.EXPECT().Get(ctx, "transfer:alice:k").Return(nil, nil)
		gomock.InOrder(
			m.idempRepo.EXPECT().Get(ctx, "transfer:alice:k").Return(nil, nil).Times(2),
			m.idempRepo.EXPECT().Get(ctx, "transfer:alice:k").Return(stored, nil),
		)
		m.expectLockedParties(ctx, "100.00", "10.00")
		m.validator.EXPECT().PreCheck(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
		m.accounts.EXPECT().AdjustBalance(ctx, gomock.Any(), "alice", money("-40.00")).Return(money("60.00"), nil)
		m.accounts.EXPECT().AdjustBalance(ctx, gomock.Any(), "bob", money("40.00")).Return(money("50.00"), nil)
		m.validator.EXPECT().PostCheck(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
		m.ledger.EXPECT().AppendTransfer(ctx, gomock.Any(), gomock.Any()).Return([]domain.LedgerEntry{{}, {}}, nil)
		m.txRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
		m.outbox.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
		m.idempRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("insert idempotency log: %w", ports.ErrConflict))

		txn, err := svc.ProcessTransfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, winner.ID, txn.ID, "the loser replays the winner instead of failing")
	})
}

func TestTransferScenario_ConcurrentSameIdempotencyKey(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "0")
	req := ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("30.00"), IdempotencyKey: "order-88"}

	const n = 8
	ids := make([]uuid.UUID, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn, err := h.transfers.ProcessTransfer(context.Background(), req)
			errs[i] = err
			if txn != nil {
				ids[i] = txn.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	h.assertBalance(t, "alice", "70.00")
	h.assertBalance(t, "bob", "30.00")
}

func TestProcessTransfer_LockTimeout(t *testing.T) {
	svc, m := newTransferWithMocks(t)
	ctx := context.Background()

	m.accounts.EXPECT().Exists(ctx, "bob").Return(true, nil)
	m.accounts.EXPECT().Exists(ctx, "alice").Return(true, nil)
	m.locks.EXPECT().Acquire(ctx, "account:alice", "account:bob").
		Return(nil, fmt.Errorf("%w: account:bob", ports.ErrLockTimeout))

	_, err := svc.ProcessTransfer(ctx, ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("1.00")})
	assertAppError(t, err, "SYS_002")
}

func TestProcessTransfer_InsufficientFunds(t *testing.T) {
	svc, m := newTransferWithMocks(t)
	ctx := context.Background()

	m.expectLockedParties(ctx, "30.00", "0.00")

	_, err := svc.ProcessTransfer(ctx, ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("30.01")})
	assertAppError(t, err, "TRX_004")
}

func TestProcessTransfer_PostCheckMismatchAborts(t *testing.T) {
	svc, m := newTransferWithMocks(t)
	ctx := context.Background()

	m.expectLockedParties(ctx, "100.00", "0.00")
	m.validator.EXPECT().PreCheck(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	m.accounts.EXPECT().AdjustBalance(ctx, gomock.Any(), "alice", money("-10.00")).Return(money("80.00"), nil)
	m.validator.EXPECT().PostCheck("alice", money("100.00"), money("-10.00"), money("80.00")).
		Return(errors.New("balance of alice is 80.00, expected 90.00"))

	_, err := svc.ProcessTransfer(ctx, ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("10.00")})
	assertAppError(t, err, "SYS_001")
}

// Scenario: alice 100, bob 10, transfer 40.
func TestTransferScenario_BasicSettlement(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "10.00")
	before := len(h.entries(t))

	txn, err := h.transfer("alice", "bob", "40.00")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCommitted, txn.Status)

	h.assertBalance(t, "alice", "60.00")
	h.assertBalance(t, "bob", "50.00")

	all := h.entries(t)
	require.Len(t, all, before+2)
	debit, credit := all[len(all)-2], all[len(all)-1]
	assert.Equal(t, txn.ID.String(), debit.TransactionID)
	assert.True(t, debit.SignedAmount.Equal(money("-40.00")))
	assert.True(t, credit.SignedAmount.Equal(money("40.00")))
	assert.Equal(t, debit.Hash, credit.PreviousHash)

	assert.True(t, h.ledgerBalance(t, "alice").Equal(money("60.00")))
	assert.True(t, h.ledgerBalance(t, "bob").Equal(money("50.00")))

	stats, err := h.ledger.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.ChainValid)
	assert.True(t, stats.NetSum.IsZero())

	events, err := h.outbox.ListPending(context.Background(), 10)
	require.NoError(t, err)
	// two opening deposits plus the transfer
	assert.Len(t, events, 3)
}

func TestTransferScenario_RejectedLeavesNoTrace(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "0")
	before := len(h.entries(t))

	_, err := h.transfer("alice", "bob", "-5.00")
	assertAppError(t, err, "TRX_001")

	_, err = h.transfer("alice", "bob", "100.01")
	assertAppError(t, err, "TRX_004")

	_, err = h.transfer("alice", "carol", "1.00")
	assertAppError(t, err, "TRX_003")

	h.assertBalance(t, "alice", "100.00")
	h.assertBalance(t, "bob", "0")
	assert.Len(t, h.entries(t), before)
}

func TestTransferScenario_ConcurrentOverdraw(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "0")
	h.open(t, "carol", "0")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, receiver := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(i int, receiver string) {
			defer wg.Done()
			_, errs[i] = h.transfer("alice", receiver, "60.00")
		}(i, receiver)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperror.ErrInsufficientFunds()):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	h.assertBalance(t, "alice", "40.00")

	report, err := h.ledger.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestTransferScenario_ConcurrentConservation(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		h.open(t, u, "500.00")
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := users[i%len(users)]
			receiver := users[(i+1)%len(users)]
			_, _ = h.transfer(sender, receiver, "17.35")
		}(i)
	}
	wg.Wait()

	total := decimal.Zero
	for _, u := range users {
		bal := h.balance(t, u)
		assert.False(t, bal.IsNegative())
		assert.True(t, bal.Equal(h.ledgerBalance(t, u)), "user %s", u)
		total = total.Add(bal)
	}
	assert.True(t, total.Equal(money("2000.00")))

	stats, err := h.ledger.Stats(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.ChainValid)
	assert.True(t, stats.NetSum.IsZero())
}

func TestTransferScenario_IdempotencyKey(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "0")
	ctx := context.Background()
	req := ports.TransferRequest{SenderID: "alice", ReceiverID: "bob", Amount: money("30.00"), IdempotencyKey: "order-77"}

	first, err := h.transfers.ProcessTransfer(ctx, req)
	require.NoError(t, err)
	second, err := h.transfers.ProcessTransfer(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	h.assertBalance(t, "alice", "70.00")
	h.assertBalance(t, "bob", "30.00")
}

func TestTransferScenario_FraudPolicy(t *testing.T) {
	t.Run("nonblocking settles and flags", func(t *testing.T) {
		h := newHarness(t, harnessConfig{})
		h.open(t, "alice", "50000.00")
		h.open(t, "bob", "0")

		_, err := h.transfer("alice", "bob", "20000.00")
		require.NoError(t, err)
		h.sink.Wait()

		h.assertBalance(t, "bob", "20000.00")
		assert.True(t, h.flagged(t, "bob"))
	})

	t.Run("blocking aborts", func(t *testing.T) {
		h := newHarness(t, harnessConfig{fraudBlocking: true})
		h.open(t, "alice", "900.00")
		h.open(t, "dave", "5000.50")
		h.open(t, "carol", "0")
		before := len(h.entries(t))

		_, err := h.transfer("dave", "carol", "2000.00")
		assertAppError(t, err, "TRX_005")
		h.assertBalance(t, "dave", "5000.50")
		h.assertBalance(t, "carol", "0")
		assert.Len(t, h.entries(t), before)

		_, err = h.transfer("alice", "carol", "500.00")
		require.NoError(t, err)
		h.assertBalance(t, "carol", "500.00")
	})
}

// failingLedger refuses every transfer append.
type failingLedger struct {
	ports.LedgerService
	calls int
	mu    sync.Mutex
}

func (f *failingLedger) AppendTransfer(context.Context, pgx.Tx, *domain.Transaction) ([]domain.LedgerEntry, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil, errors.New("chain tip moved")
}

func TestTransferScenario_LedgerExhaustionQueuesReconcile(t *testing.T) {
	var failing *failingLedger
	h := newHarness(t, harnessConfig{wrapLedger: func(l ports.LedgerService) ports.LedgerService {
		failing = &failingLedger{LedgerService: l}
		return failing
	}})
	ctx := context.Background()
	_, err := h.transfers.OpenAccount(ctx, "alice")
	require.NoError(t, err)
	before := len(h.entries(t))

	txn, err := h.transfers.Deposit(ctx, "alice", money("75.00"), "")
	require.NoError(t, err)
	assert.True(t, txn.ReconcilePending)
	assert.Equal(t, 3, failing.calls)

	// Stored balance moved; the ledger did not.
	h.assertBalance(t, "alice", "75.00")
	assert.Len(t, h.entries(t), before)

	pending, err := h.reporting.FailedTransactions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, txn.ID, pending[0].ID)
}

func TestOpenAccount(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	ctx := context.Background()

	acc, err := h.transfers.OpenAccount(ctx, " alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.UserID)
	assert.True(t, acc.Balance.IsZero())

	_, err = h.transfers.OpenAccount(ctx, "alice")
	assertAppError(t, err, "TRX_006")
	_, err = h.transfers.OpenAccount(ctx, domain.SystemAccountID)
	assertAppError(t, err, "TRX_006")
	_, err = h.transfers.OpenAccount(ctx, "")
	assertAppError(t, err, "VAL_001")
}

func TestDepositAndWithdraw(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "80.00")
	ctx := context.Background()

	txn, err := h.transfers.Withdraw(ctx, "alice", money("30.00"), "atm")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeWithdrawal, txn.Type)
	assert.Equal(t, domain.SystemAccountID, txn.ReceiverID)

	h.assertBalance(t, "alice", "50.00")
	h.assertBalance(t, domain.SystemAccountID, "-50.00")

	_, err = h.transfers.Withdraw(ctx, "alice", money("50.01"), "")
	assertAppError(t, err, "TRX_004")
}
