package service

import (
	"context"
	"fmt"
	"sync"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/clock"
	"finguard-ledger/pkg/retry"

	"github.com/rs/zerolog"
)

const (
	defaultAuditListLimit = 100
	maxAuditListLimit     = 1000
)

// AuditServiceImpl implements ports.AuditService. Entries are written
// synchronously with bounded retry; whatever still fails waits in an
// in-process backlog until the next sweep flushes it.
type AuditServiceImpl struct {
	repo   ports.AuditRepository
	clock  clock.Clock
	policy retry.Policy
	log    zerolog.Logger

	mu      sync.Mutex
	backlog []*domain.AuditEntry
}

// NewAuditService creates a new audit service.
func NewAuditService(repo ports.AuditRepository, clk clock.Clock, policy retry.Policy, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, clock: clk, policy: policy, log: log}
}

// Record appends an audit entry. It never fails the caller's operation.
func (s *AuditServiceImpl) Record(ctx context.Context, op domain.AuditOperation, entityID, actorID string, success bool, details map[string]any) {
	entry, err := domain.NewAuditEntry(op, entityID, actorID, success, details, s.clock.Now())
	if err != nil {
		s.log.Error().Err(err).Str("operation", string(op)).Str("entity_id", entityID).Msg("invalid audit entry dropped")
		return
	}

	s.log.Info().
		Str("operation", string(op)).
		Str("entity_id", entityID).
		Str("actor_id", actorID).
		Bool("success", success).
		Msg("audit")

	// The entry outlives a cancelled request.
	ctx = context.WithoutCancel(ctx)
	err = retry.Do(ctx, s.policy, func(ctx context.Context, _ int) error {
		return s.repo.Create(ctx, entry)
	})
	if err != nil {
		s.log.Error().Err(err).Str("audit_id", entry.ID.String()).Msg("failed to persist audit entry, queued in backlog")
		s.mu.Lock()
		s.backlog = append(s.backlog, entry)
		s.mu.Unlock()
	}
}

// List returns audit entries newest first.
func (s *AuditServiceImpl) List(ctx context.Context, limit int, operation *domain.AuditOperation) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	if limit > maxAuditListLimit {
		limit = maxAuditListLimit
	}
	entries, err := s.repo.List(ctx, limit, operation)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// FlushBacklog retries queued entries once each and returns how many were
// written. Entries that still fail stay queued.
func (s *AuditServiceImpl) FlushBacklog(ctx context.Context) (int, error) {
	s.mu.Lock()
	pending := s.backlog
	s.backlog = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return 0, nil
	}

	var failed []*domain.AuditEntry
	var lastErr error
	for _, entry := range pending {
		if err := s.repo.Create(ctx, entry); err != nil {
			failed = append(failed, entry)
			lastErr = err
		}
	}

	if len(failed) > 0 {
		s.mu.Lock()
		s.backlog = append(failed, s.backlog...)
		s.mu.Unlock()
	}

	flushed := len(pending) - len(failed)
	s.log.Info().Int("flushed", flushed).Int("remaining", len(failed)).Msg("audit backlog flushed")
	if lastErr != nil {
		return flushed, fmt.Errorf("flush audit backlog: %w", lastErr)
	}
	return flushed, nil
}

// BacklogSize reports how many entries wait for a flush.
func (s *AuditServiceImpl) BacklogSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}
