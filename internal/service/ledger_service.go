package service

import (
	"context"
	"fmt"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerServiceImpl implements ports.LedgerService on top of a LedgerStore.
// The chain itself lives in storage; this type only seals and checks entries.
type LedgerServiceImpl struct {
	store      ports.LedgerStore
	transactor ports.DBTransactor
	clock      clock.Clock
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(store ports.LedgerStore, transactor ports.DBTransactor, clk clock.Clock, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		store:      store,
		transactor: transactor,
		clock:      clk,
		log:        log,
	}
}

// EnsureGenesis creates the genesis entry if the chain is empty. It returns
// the chain tip, which is the genesis entry on a fresh chain.
func (s *LedgerServiceImpl) EnsureGenesis(ctx context.Context) (*domain.LedgerEntry, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	tip, err := s.tip(ctx, dbTx)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit genesis: %w", err)
	}
	return tip, nil
}

// tip reads the latest entry under the chain lock, appending genesis first
// when the chain is empty.
func (s *LedgerServiceImpl) tip(ctx context.Context, tx pgx.Tx) (*domain.LedgerEntry, error) {
	latest, err := s.store.ReadLatest(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("read ledger tip: %w", err)
	}
	if latest != nil {
		return latest, nil
	}

	genesis, err := domain.NewGenesisEntry(s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Append(ctx, tx, genesis); err != nil {
		return nil, fmt.Errorf("append genesis: %w", err)
	}
	s.log.Info().Str("hash", genesis.Hash).Msg("ledger genesis created")
	return genesis, nil
}

// Append seals payload onto the chain inside tx.
func (s *LedgerServiceImpl) Append(ctx context.Context, tx pgx.Tx, payload ports.LedgerAppend) (*domain.LedgerEntry, error) {
	prev, err := s.tip(ctx, tx)
	if err != nil {
		return nil, err
	}
	return s.appendAfter(ctx, tx, prev, payload)
}

func (s *LedgerServiceImpl) appendAfter(ctx context.Context, tx pgx.Tx, prev *domain.LedgerEntry, payload ports.LedgerAppend) (*domain.LedgerEntry, error) {
	entry, err := domain.NewLedgerEntry(domain.LedgerPayload{
		SequenceIndex:  prev.SequenceIndex + 1,
		Timestamp:      s.clock.Now(),
		TransactionID:  payload.TransactionID,
		CounterpartyID: payload.CounterpartyID,
		SignedAmount:   payload.SignedAmount,
	}, prev.Hash)
	if err != nil {
		return nil, err
	}
	if err := s.store.Append(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// AppendTransfer appends the debit and credit entries of t.
func (s *LedgerServiceImpl) AppendTransfer(ctx context.Context, tx pgx.Tx, t *domain.Transaction) ([]domain.LedgerEntry, error) {
	prev, err := s.tip(ctx, tx)
	if err != nil {
		return nil, err
	}

	legs := []ports.LedgerAppend{
		{TransactionID: t.ID.String(), CounterpartyID: t.SenderID, SignedAmount: t.Amount.Neg()},
		{TransactionID: t.ID.String(), CounterpartyID: t.ReceiverID, SignedAmount: t.Amount},
	}
	entries := make([]domain.LedgerEntry, 0, len(legs))
	for _, leg := range legs {
		entry, err := s.appendAfter(ctx, tx, prev, leg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
		prev = entry
	}
	return entries, nil
}

// Validate walks the whole chain. It never writes.
func (s *LedgerServiceImpl) Validate(ctx context.Context) (*domain.ChainReport, error) {
	entries, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	report := domain.VerifyChain(entries)
	if !report.Valid {
		s.log.Error().Strs("errors", report.Errors).Msg("ledger chain validation failed")
	}
	return &report, nil
}

// GetBalance derives a user's balance from the ledger.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	sum, err := s.store.SumByCounterparty(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger balance: %w", err)
	}
	return sum, nil
}

// Stats summarises the chain.
func (s *LedgerServiceImpl) Stats(ctx context.Context) (*domain.ChainStats, error) {
	entries, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	stats := &domain.ChainStats{
		TotalEntries: len(entries),
		ChainValid:   domain.VerifyChain(entries).Valid,
		NetSum:       decimal.Zero,
	}
	for _, e := range entries {
		stats.NetSum = stats.NetSum.Add(e.SignedAmount)
	}
	if n := len(entries); n > 0 {
		stats.LatestHash = entries[n-1].Hash
		stats.LatestSequence = entries[n-1].SequenceIndex
	}
	return stats, nil
}

// EntriesForTransaction returns the ledger entries written for a transaction.
func (s *LedgerServiceImpl) EntriesForTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	entries, err := s.store.ReadByTransaction(ctx, transactionID.String())
	if err != nil {
		return nil, fmt.Errorf("read transaction entries: %w", err)
	}
	return entries, nil
}
