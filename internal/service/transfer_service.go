package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/apperror"
	"finguard-ledger/pkg/clock"
	"finguard-ledger/pkg/retry"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const accountLockPrefix = "account:"

// errIdempotencyKeyTaken reports that the idempotency log insert lost a race.
var errIdempotencyKeyTaken = errors.New("idempotency key already committed")

// TransferDeps groups the collaborators of the transfer coordinator.
type TransferDeps struct {
	Accounts     ports.AccountRepository
	Transactions ports.TransactionRepository
	Ledger       ports.LedgerService
	Validator    ports.ValidationService
	Outbox       ports.OutboxRepository
	IdempRepo    ports.IdempotencyRepository
	IdempCache   ports.IdempotencyCache
	Locks        ports.LockManager
	Transactor   ports.DBTransactor
	Clock        clock.Clock
}

// TransferServiceImpl implements ports.TransferService. Every balance change
// in the system, refunds and admin adjustments included, goes through
// ProcessTransfer.
type TransferServiceImpl struct {
	accounts   ports.AccountRepository
	txRepo     ports.TransactionRepository
	ledger     ports.LedgerService
	validator  ports.ValidationService
	outbox     ports.OutboxRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	locks      ports.LockManager
	transactor ports.DBTransactor
	clock      clock.Clock
	appendPol  retry.Policy
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl. appendPolicy bounds
// the ledger append retries.
func NewTransferService(d TransferDeps, appendPolicy retry.Policy, log zerolog.Logger) *TransferServiceImpl {
	return &TransferServiceImpl{
		accounts:   d.Accounts,
		txRepo:     d.Transactions,
		ledger:     d.Ledger,
		validator:  d.Validator,
		outbox:     d.Outbox,
		idempRepo:  d.IdempRepo,
		idempCache: d.IdempCache,
		locks:      d.Locks,
		transactor: d.Transactor,
		clock:      d.Clock,
		appendPol:  appendPolicy,
		log:        log,
	}
}

// ProcessTransfer moves req.Amount from sender to receiver in one unit of
// work: account locks, balance update, ledger entries, transaction record,
// outbox event and idempotency log commit together or not at all.
func (s *TransferServiceImpl) ProcessTransfer(ctx context.Context, req ports.TransferRequest) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(req.Amount); err != nil {
		return nil, apperror.ErrInvalidAmount()
	}
	req.SenderID = strings.TrimSpace(req.SenderID)
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	if req.SenderID == "" || req.ReceiverID == "" {
		return nil, apperror.Validation("sender_id and receiver_id are required")
	}
	if req.SenderID == req.ReceiverID {
		return nil, apperror.ErrSelfTransfer()
	}
	if req.Type == "" {
		req.Type = domain.TransactionTypeTransfer
	}
	if !req.Type.Valid() {
		return nil, apperror.Validation("unknown transaction type")
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildTransferIdempotencyKey(req.SenderID, req.IdempotencyKey)
		if txn, err := s.lookupIdempotent(ctx, idempKey); txn != nil || err != nil {
			return txn, err
		}
	}

	exists, err := s.accounts.Exists(ctx, req.ReceiverID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check receiver: %w", err))
	}
	if !exists {
		return nil, apperror.ErrRecipientNotFound()
	}
	exists, err = s.accounts.Exists(ctx, req.SenderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check sender: %w", err))
	}
	if !exists {
		return nil, apperror.ErrNotFound("sender account")
	}

	release, err := s.locks.Acquire(ctx, accountLockPrefix+req.SenderID, accountLockPrefix+req.ReceiverID)
	if err != nil {
		if errors.Is(err, ports.ErrLockTimeout) {
			return nil, apperror.ErrLockTimeout(err)
		}
		return nil, apperror.InternalError(fmt.Errorf("acquire account locks: %w", err))
	}
	defer release(ctx)

	// A duplicate that slipped past the first lookup waits on the sender's
	// lock and finds the winner's log here.
	if idempKey != "" {
		if prior, err := s.storedIdempotent(ctx, idempKey); prior != nil || err != nil {
			return prior, err
		}
	}

	txn, err := domain.NewTransaction(domain.TransactionParams{
		SenderID:              req.SenderID,
		ReceiverID:            req.ReceiverID,
		Amount:                req.Amount,
		PaymentMethod:         req.PaymentMethod,
		Type:                  req.Type,
		Note:                  req.Note,
		Location:              req.Location,
		OriginalTransactionID: req.OriginalTransactionID,
	}, s.clock.Now())
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	committed, respJSON, err := s.settle(ctx, txn, req, idempKey)
	if errors.Is(err, errIdempotencyKeyTaken) {
		// Another node committed the same key first; the unit rolled back.
		if prior, lookupErr := s.storedIdempotent(ctx, idempKey); prior != nil || lookupErr != nil {
			return prior, lookupErr
		}
		err = apperror.ErrPersistenceFailure(err)
	}
	if err != nil {
		txn.Fail()
		s.log.Warn().
			Err(err).
			Str("tx_id", txn.ID.String()).
			Str("sender_id", txn.SenderID).
			Str("receiver_id", txn.ReceiverID).
			Str("type", string(txn.Type)).
			Msg("transfer failed")
		return nil, err
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, domain.IdempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.log.Info().
		Str("tx_id", committed.ID.String()).
		Str("sender_id", committed.SenderID).
		Str("receiver_id", committed.ReceiverID).
		Str("amount", committed.Amount.StringFixed(domain.MoneyScale)).
		Str("type", string(committed.Type)).
		Bool("reconcile_pending", committed.ReconcilePending).
		Msg("transfer committed")

	return committed, nil
}

// settle runs the database part of a transfer. The caller holds the account
// locks.
func (s *TransferServiceImpl) settle(ctx context.Context, txn *domain.Transaction, req ports.TransferRequest, idempKey string) (*domain.Transaction, []byte, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.ErrPersistenceFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Row locks follow the same sorted order as the account locks.
	first, second := txn.SenderID, txn.ReceiverID
	if second < first {
		first, second = second, first
	}
	balances := make(map[string]decimal.Decimal, 2)
	for _, id := range []string{first, second} {
		acc, err := s.accounts.GetForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, nil, apperror.ErrPersistenceFailure(fmt.Errorf("lock account %s: %w", id, err))
		}
		if acc == nil {
			if id == txn.ReceiverID {
				return nil, nil, apperror.ErrRecipientNotFound()
			}
			return nil, nil, apperror.ErrNotFound("sender account")
		}
		balances[id] = acc.Balance
	}

	if !domain.CanCover(txn.SenderID, balances[txn.SenderID], txn.Amount) {
		return nil, nil, apperror.ErrInsufficientFunds()
	}

	for _, id := range []string{txn.SenderID, txn.ReceiverID} {
		if err := s.validator.PreCheck(ctx, id, balances[id], txn.Amount); err != nil {
			return nil, nil, err
		}
	}

	if err := s.adjust(ctx, dbTx, txn.SenderID, balances[txn.SenderID], txn.Amount.Neg()); err != nil {
		return nil, nil, err
	}
	if err := s.adjust(ctx, dbTx, txn.ReceiverID, balances[txn.ReceiverID], txn.Amount); err != nil {
		return nil, nil, err
	}

	if err := txn.Commit(); err != nil {
		return nil, nil, apperror.InternalError(err)
	}

	if err := s.appendLedger(ctx, dbTx, txn); err != nil {
		txn.ReconcilePending = true
		s.log.Error().
			Err(err).
			Str("tx_id", txn.ID.String()).
			Msg("ledger append exhausted, transaction queued for reconciliation")
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, nil, apperror.ErrPersistenceFailure(fmt.Errorf("create transaction: %w", err))
	}

	event, err := domain.NewOutboxEvent(domain.EventTransferCommitted, txn.ID, domain.NewMirrorTransfer(txn), s.clock.Now())
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	if err := s.outbox.Create(ctx, dbTx, event); err != nil {
		return nil, nil, apperror.ErrPersistenceFailure(fmt.Errorf("create outbox event: %w", err))
	}

	respJSON, err := json.Marshal(txn)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	if idempKey != "" {
		idempLog := domain.NewIdempotencyLog(idempKey, txn.ID, respJSON, txn.Timestamp)
		if err := s.idempRepo.Create(ctx, dbTx, idempLog); err != nil {
			if errors.Is(err, ports.ErrConflict) {
				return nil, nil, errIdempotencyKeyTaken
			}
			return nil, nil, apperror.ErrPersistenceFailure(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if req.OnCommit != nil {
		if err := req.OnCommit(ctx, dbTx, txn); err != nil {
			return nil, nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.ErrPersistenceFailure(fmt.Errorf("commit tx: %w", err))
	}
	return txn, respJSON, nil
}

func (s *TransferServiceImpl) adjust(ctx context.Context, tx pgx.Tx, userID string, before, delta decimal.Decimal) error {
	after, err := s.accounts.AdjustBalance(ctx, tx, userID, delta)
	if err != nil {
		return apperror.ErrPersistenceFailure(fmt.Errorf("adjust balance of %s: %w", userID, err))
	}
	if err := s.validator.PostCheck(userID, before, delta, after); err != nil {
		return apperror.InternalError(err)
	}
	return nil
}

// appendLedger writes the transfer's entries, each attempt in its own
// savepoint so a failed attempt leaves nothing behind.
func (s *TransferServiceImpl) appendLedger(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	return retry.Do(ctx, s.appendPol, func(ctx context.Context, attempt int) error {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}
		if _, err := s.ledger.AppendTransfer(ctx, sp, txn); err != nil {
			_ = sp.Rollback(ctx)
			s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Int("attempt", attempt+1).Msg("ledger append failed")
			if errors.Is(err, domain.ErrNonCanonicalPayload) {
				return &retry.Permanent{Err: err}
			}
			return err
		}
		return sp.Commit(ctx)
	})
}

// lookupIdempotent checks Redis first, then the idempotency log table.
func (s *TransferServiceImpl) lookupIdempotent(ctx context.Context, key string) (*domain.Transaction, error) {
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalTransaction(cached)
	}

	return s.storedIdempotent(ctx, key)
}

// storedIdempotent reads the authoritative idempotency log, skipping the cache.
func (s *TransferServiceImpl) storedIdempotent(ctx context.Context, key string) (*domain.Transaction, error) {
	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		return unmarshalTransaction(idempLog.ResponseJSON)
	}
	return nil, nil
}

// Deposit credits userID from the SYSTEM account.
func (s *TransferServiceImpl) Deposit(ctx context.Context, userID string, amount decimal.Decimal, note string) (*domain.Transaction, error) {
	return s.ProcessTransfer(ctx, ports.TransferRequest{
		SenderID:   domain.SystemAccountID,
		ReceiverID: userID,
		Amount:     amount,
		Note:       note,
		Type:       domain.TransactionTypeDeposit,
	})
}

// Withdraw debits userID to the SYSTEM account.
func (s *TransferServiceImpl) Withdraw(ctx context.Context, userID string, amount decimal.Decimal, note string) (*domain.Transaction, error) {
	return s.ProcessTransfer(ctx, ports.TransferRequest{
		SenderID:   userID,
		ReceiverID: domain.SystemAccountID,
		Amount:     amount,
		Note:       note,
		Type:       domain.TransactionTypeWithdrawal,
	})
}

// OpenAccount creates an empty account.
func (s *TransferServiceImpl) OpenAccount(ctx context.Context, userID string) (*domain.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.Validation("user_id is required")
	}
	if domain.IsSystemAccount(userID) {
		return nil, apperror.ErrAccountExists()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrPersistenceFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	acc := &domain.Account{UserID: userID, Balance: decimal.Zero, UpdatedAt: domain.NormalizeTime(s.clock.Now())}
	if err := s.accounts.Create(ctx, dbTx, acc); err != nil {
		if errors.Is(err, ports.ErrConflict) {
			return nil, apperror.ErrAccountExists()
		}
		return nil, apperror.ErrPersistenceFailure(fmt.Errorf("create account: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrPersistenceFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("user_id", userID).Msg("account opened")
	return acc, nil
}

func unmarshalTransaction(data []byte) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	if err := json.Unmarshal(data, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached tx: %w", err))
	}
	return txn, nil
}
