package service

import (
	"context"
	"sync"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/clock"

	"github.com/rs/zerolog"
)

const defaultFraudSinkTimeout = 5 * time.Second

// FraudSinkImpl implements ports.FraudSink. Flags are persisted in the
// background so a slow fraud store never delays a transfer.
type FraudSinkImpl struct {
	repo    ports.FraudFlagRepository
	clock   clock.Clock
	timeout time.Duration
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewFraudSink creates a new FraudSinkImpl.
func NewFraudSink(repo ports.FraudFlagRepository, clk clock.Clock, log zerolog.Logger) *FraudSinkImpl {
	return &FraudSinkImpl{
		repo:    repo,
		clock:   clk,
		timeout: defaultFraudSinkTimeout,
		log:     log,
	}
}

// RecordFlag records a flag asynchronously (fire-and-forget). A user that
// already has an open flag is left as is.
func (s *FraudSinkImpl) RecordFlag(ctx context.Context, userID string, reason string) {
	flag := &domain.FraudFlag{
		UserID:    userID,
		Reason:    reason,
		CreatedAt: domain.NormalizeTime(s.clock.Now()),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		created, err := s.repo.Flag(ctx, flag)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to persist fraud flag")
			return
		}
		if created {
			s.log.Info().Str("user_id", userID).Str("reason", reason).Msg("user flagged for fraud review")
		}
	}()
}

// Wait blocks until every pending flag write has finished.
func (s *FraudSinkImpl) Wait() {
	s.wg.Wait()
}
