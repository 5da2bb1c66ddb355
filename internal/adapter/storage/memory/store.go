// Package memory holds in-process implementations of the storage ports. They
// back the "memory" storage driver and the service-level scenario tests.
//
// Writes are applied to the shared maps right away and undone if the unit
// of work rolls back. Readers can therefore observe uncommitted writes;
// callers serialize conflicting work through the LockManager and the ledger
// chain lock, exactly as they do against PostgreSQL.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrForeignTx is returned when a repository receives a transaction that
// was not started by this package.
var ErrForeignTx = errors.New("transaction was not started by the memory store")

// Store is the shared state behind every memory repository.
type Store struct {
	mu    sync.RWMutex
	clock clock.Clock

	accounts     map[string]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	ledger       []domain.LedgerEntry
	ledgerHashes map[string]struct{}
	rollbacks    map[uuid.UUID]domain.RollbackRecord
	backups      map[uuid.UUID]domain.BalanceBackup
	audit        []domain.AuditEntry
	outbox       map[uuid.UUID]domain.OutboxEvent
	fraudFlags   map[string]domain.FraudFlag
	idempotency  map[string]domain.IdempotencyLog

	// chain serializes ledger appends; held from ReadLatest until the
	// owning unit of work ends.
	chain sync.Mutex
}

// NewStore returns an empty store seeded with the SYSTEM account.
func NewStore(clk clock.Clock) *Store {
	s := &Store{
		clock:        clk,
		accounts:     make(map[string]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
		ledgerHashes: make(map[string]struct{}),
		rollbacks:    make(map[uuid.UUID]domain.RollbackRecord),
		backups:      make(map[uuid.UUID]domain.BalanceBackup),
		outbox:       make(map[uuid.UUID]domain.OutboxEvent),
		fraudFlags:   make(map[string]domain.FraudFlag),
		idempotency:  make(map[string]domain.IdempotencyLog),
	}
	s.accounts[domain.SystemAccountID] = domain.Account{
		UserID:    domain.SystemAccountID,
		Balance:   decimal.Zero,
		UpdatedAt: clk.Now(),
	}
	return s
}

// write runs fn under the store lock and records undo on tx.
func (s *Store) write(tx pgx.Tx, fn func() (undo func(), err error)) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	undo, err := fn()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if undo != nil {
		t.addUndo(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			undo()
		})
	}
	return nil
}

// Tx is an in-memory unit of work. It satisfies pgx.Tx so services written
// against the PostgreSQL transactor run unchanged; only Begin, Commit and
// Rollback are meaningful.
type Tx struct {
	pgx.Tx

	mu     sync.Mutex
	parent *Tx
	undo   []func()
	onEnd  []func()
	closed bool
	chain  bool
}

func asTx(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, ErrForeignTx
	}
	return t, nil
}

func (t *Tx) root() *Tx {
	r := t
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (t *Tx) addUndo(fn func()) {
	t.mu.Lock()
	t.undo = append(t.undo, fn)
	t.mu.Unlock()
}

// Begin starts a nested unit of work, the equivalent of a savepoint.
func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, pgx.ErrTxClosed
	}
	return &Tx{parent: t}, nil
}

// Commit keeps the writes. A nested commit hands its undo log to the parent.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	t.closed = true
	undo, onEnd := t.undo, t.onEnd
	t.undo, t.onEnd = nil, nil
	t.mu.Unlock()

	if t.parent != nil {
		t.parent.mu.Lock()
		t.parent.undo = append(t.parent.undo, undo...)
		t.parent.onEnd = append(t.parent.onEnd, onEnd...)
		t.parent.mu.Unlock()
		return nil
	}
	runEnd(onEnd)
	return nil
}

// Rollback reverts every write of this unit of work, newest first.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	t.closed = true
	undo, onEnd := t.undo, t.onEnd
	t.undo, t.onEnd = nil, nil
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}

	// Locks taken inside a savepoint stay with the enclosing transaction.
	if t.parent != nil {
		t.parent.mu.Lock()
		t.parent.onEnd = append(t.parent.onEnd, onEnd...)
		t.parent.mu.Unlock()
		return nil
	}
	runEnd(onEnd)
	return nil
}

func runEnd(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// lockChain takes the ledger chain lock for the root of tx, once.
func (s *Store) lockChain(tx pgx.Tx) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	r := t.root()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return pgx.ErrTxClosed
	}
	if r.chain {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	s.chain.Lock()

	r.mu.Lock()
	r.chain = true
	r.onEnd = append(r.onEnd, s.chain.Unlock)
	r.mu.Unlock()
	return nil
}

// Transactor implements ports.DBTransactor for the memory store.
type Transactor struct {
	store *Store
}

// NewTransactor creates a memory transactor.
func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

// Begin starts a new unit of work.
func (tr *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{}, nil
}

// HealthCheck implements ports.HealthChecker for the memory store.
type HealthCheck struct{}

// NewHealthCheck creates a memory health checker.
func NewHealthCheck() *HealthCheck { return &HealthCheck{} }

// Ping always succeeds.
func (HealthCheck) Ping(context.Context) error { return nil }

// Name returns the dependency name.
func (HealthCheck) Name() string { return "memory" }

func (s *Store) now() time.Time { return s.clock.Now() }
