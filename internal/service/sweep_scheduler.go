package service

import (
	"context"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const sweepLeaderKey = "sweep:leader"

// SweepScheduler runs the sweep periodically. Only the replica holding the
// leader lock sweeps on a given tick.
type SweepScheduler struct {
	sweep    ports.SweepService
	locks    ports.LockManager
	audit    ports.AuditService
	interval time.Duration
	hours    int
	actorID  string
	log      zerolog.Logger
}

// NewSweepScheduler creates a new SweepScheduler.
func NewSweepScheduler(sweep ports.SweepService, locks ports.LockManager, audit ports.AuditService, interval time.Duration, hours int, actorID string, log zerolog.Logger) *SweepScheduler {
	return &SweepScheduler{
		sweep:    sweep,
		locks:    locks,
		audit:    audit,
		interval: interval,
		hours:    hours,
		actorID:  actorID,
		log:      log,
	}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (s *SweepScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Int("hours_threshold", s.hours).Msg("sweep scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scheduled sweep. It reports whether this
// replica ran it.
func (s *SweepScheduler) RunOnce(ctx context.Context) bool {
	release, ok, err := s.locks.TryAcquire(ctx, sweepLeaderKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("sweep leader lock unavailable")
		return false
	}
	if !ok {
		s.log.Debug().Msg("another replica is sweeping")
		return false
	}
	defer release(ctx)

	started := time.Now()
	result, err := s.sweep.AutoRollbackStale(ctx, s.hours, s.actorID)

	details := map[string]any{
		"task":        "auto_rollback_sweep",
		"duration_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		details["error"] = err.Error()
		s.log.Error().Err(err).Msg("scheduled sweep failed")
	} else {
		details["message"] = result.Message
	}
	s.audit.Record(ctx, domain.AuditOperationMaintenance, "sweep", s.actorID, err == nil, details)
	return true
}
