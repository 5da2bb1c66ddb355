package service

import (
	"context"
	"io"
	"testing"
	"time"

	"finguard-ledger/internal/adapter/storage/memory"
	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/clock"
	"finguard-ledger/pkg/retry"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperror.CodeOf(err), "error: %v", err)
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error        { return nil }
func (m *mockTx) Commit(_ context.Context) error          { return nil }
func (m *mockTx) Begin(_ context.Context) (pgx.Tx, error) { return &mockTx{}, nil }

func noRetry() retry.Policy { return retry.Policy{Attempts: 1} }

// harness wires every service onto one memory store.
type harness struct {
	clock     *clock.Fake
	store     *memory.Store
	accounts  *memory.AccountRepo
	txns      *memory.TransactionRepo
	chain     *memory.LedgerRepo
	outbox    *memory.OutboxRepo
	records   *memory.RollbackRepo
	flags     *memory.FraudFlagRepo
	locks     *memory.LockManager
	ledger    *LedgerServiceImpl
	audit     *AuditServiceImpl
	sink      *FraudSinkImpl
	transfers *TransferServiceImpl
	rollbacks *RollbackServiceImpl
	backups   *BackupServiceImpl
	sweep     *SweepServiceImpl
	reporting ports.ReportingService
}

type harnessConfig struct {
	fraudBlocking bool
	directRestore bool
	// wrapLedger lets a test interpose on the ledger the coordinator uses.
	wrapLedger func(ports.LedgerService) ports.LedgerService
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	log := newTestLogger()
	clk := clock.NewFake(testNow)
	store := memory.NewStore(clk)
	transactor := memory.NewTransactor(store)

	h := &harness{
		clock:    clk,
		store:    store,
		accounts: memory.NewAccountRepo(store),
		txns:     memory.NewTransactionRepo(store),
		chain:    memory.NewLedgerRepo(store),
		outbox:   memory.NewOutboxRepo(store),
		records:  memory.NewRollbackRepo(store),
		flags:    memory.NewFraudFlagRepo(store),
		locks:    memory.NewLockManager(2 * time.Second),
	}
	h.ledger = NewLedgerService(h.chain, transactor, clk, log)
	_, err := h.ledger.EnsureGenesis(context.Background())
	require.NoError(t, err)

	h.audit = NewAuditService(memory.NewAuditRepo(store), clk, noRetry(), log)
	h.sink = NewFraudSink(h.flags, clk, log)
	t.Cleanup(h.sink.Wait)

	validator := NewValidationEngine(h.ledger, h.sink, ValidationPolicy{
		Nonblocking: !cfg.fraudBlocking,
		LargeAmount: money("10000.00"),
		Tolerance:   money("0.01"),
	}, log)

	var coordinatorLedger ports.LedgerService = h.ledger
	if cfg.wrapLedger != nil {
		coordinatorLedger = cfg.wrapLedger(h.ledger)
	}

	h.transfers = NewTransferService(TransferDeps{
		Accounts:     h.accounts,
		Transactions: h.txns,
		Ledger:       coordinatorLedger,
		Validator:    validator,
		Outbox:       h.outbox,
		IdempRepo:    memory.NewIdempotencyRepo(store),
		IdempCache:   memory.NewIdempotencyCache(clk),
		Locks:        h.locks,
		Transactor:   transactor,
		Clock:        clk,
	}, retry.Policy{Attempts: 3, Base: time.Millisecond}, log)

	h.rollbacks = NewRollbackService(h.txns, h.records, h.transfers, h.locks, h.audit, clk, domain.DefaultRollbackWindow, log)
	h.backups = NewBackupService(h.accounts, memory.NewBackupRepo(store), h.transfers, h.locks, transactor, h.audit, clk, !cfg.directRestore, log)
	h.sweep = NewSweepService(h.txns, h.ledger, h.rollbacks, h.audit, h.locks, transactor, clk, domain.DefaultRollbackWindow, 100, log)
	h.reporting = NewReportingService(h.txns, h.accounts, h.ledger, h.rollbacks)
	return h
}

// open creates userID and deposits an opening balance when it is positive.
func (h *harness) open(t *testing.T, userID, opening string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.transfers.OpenAccount(ctx, userID)
	require.NoError(t, err)
	if amount := money(opening); amount.IsPositive() {
		_, err = h.transfers.Deposit(ctx, userID, amount, "opening balance")
		require.NoError(t, err)
	}
}

func (h *harness) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	acc, err := h.accounts.Get(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, acc, "account %s", userID)
	return acc.Balance
}

func (h *harness) assertBalance(t *testing.T, userID, want string) {
	t.Helper()
	got := h.balance(t, userID)
	assert.True(t, got.Equal(money(want)), "%s balance = %s, want %s", userID, got, want)
}

func (h *harness) ledgerBalance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	bal, err := h.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return bal
}

func (h *harness) transfer(sender, receiver, amount string) (*domain.Transaction, error) {
	return h.transfers.ProcessTransfer(context.Background(), ports.TransferRequest{
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     money(amount),
	})
}

func (h *harness) entries(t *testing.T) []domain.LedgerEntry {
	t.Helper()
	all, err := h.chain.ReadAll(context.Background())
	require.NoError(t, err)
	return all
}

func (h *harness) auditEntries(t *testing.T, op domain.AuditOperation) []domain.AuditEntry {
	t.Helper()
	entries, err := h.audit.List(context.Background(), 0, &op)
	require.NoError(t, err)
	return entries
}

// flagged reports whether userID already carries an open fraud flag.
func (h *harness) flagged(t *testing.T, userID string) bool {
	t.Helper()
	created, err := h.flags.Flag(context.Background(), &domain.FraudFlag{UserID: userID, Reason: "manual flag", CreatedAt: testNow})
	require.NoError(t, err)
	return !created
}
