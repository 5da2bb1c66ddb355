package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports"
	"finguard-ledger/pkg/clock"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// MirrorEnvelope is the JSON body POSTed to the mirror.
type MirrorEnvelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Data        json.RawMessage `json:"data"`
	CreatedAt   int64           `json:"created_at"`
}

// Headers set on every mirror delivery.
const (
	HeaderSignature          = "X-Signature"
	HeaderSignatureTimestamp = "X-Signature-Timestamp"
	HeaderEventID            = "X-Event-ID"
)

// HTTPMirrorPublisher implements ports.MirrorPublisher over HTTP. Each
// delivery is signed together with its send time so the mirror can reject
// stale replays.
type HTTPMirrorPublisher struct {
	url        string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	clock      clock.Clock
}

// NewHTTPMirrorPublisher creates a new HTTPMirrorPublisher.
func NewHTTPMirrorPublisher(url, secret string, sigSvc ports.SignatureService, httpClient HTTPClient, clk clock.Clock) *HTTPMirrorPublisher {
	return &HTTPMirrorPublisher{url: url, secret: secret, sigSvc: sigSvc, httpClient: httpClient, clock: clk}
}

// Publish delivers one event. Any non-2xx answer is an error.
func (p *HTTPMirrorPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	body, err := json.Marshal(MirrorEnvelope{
		EventID:     event.ID.String(),
		EventType:   event.EventType,
		AggregateID: event.AggregateID.String(),
		Data:        event.Payload,
		CreatedAt:   event.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal mirror envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mirror request: %w", err)
	}
	sentAt := p.clock.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, p.sigSvc.Sign(p.secret, sentAt, body))
	req.Header.Set(HeaderSignatureTimestamp, strconv.FormatInt(sentAt, 10))
	req.Header.Set(HeaderEventID, event.ID.String())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver mirror event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mirror responded with status %d", resp.StatusCode)
	}
	return nil
}

// MirrorDispatcher drains the outbox into a MirrorPublisher. It never touches
// balances or the ledger; a mirror outage only delays delivery.
type MirrorDispatcher struct {
	outbox      ports.OutboxRepository
	publisher   ports.MirrorPublisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	timeout     time.Duration
	log         zerolog.Logger
}

// MirrorDispatcherConfig tunes polling and retries.
type MirrorDispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	Timeout      time.Duration
}

// NewMirrorDispatcher creates a new MirrorDispatcher.
func NewMirrorDispatcher(outbox ports.OutboxRepository, publisher ports.MirrorPublisher, cfg MirrorDispatcherConfig, log zerolog.Logger) *MirrorDispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MirrorDispatcher{
		outbox:      outbox,
		publisher:   publisher,
		interval:    cfg.PollInterval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.Timeout,
		log:         log,
	}
}

// Run polls the outbox until ctx is cancelled.
func (d *MirrorDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("mirror dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.log.Warn().Err(err).Msg("mirror dispatch failed")
			}
		}
	}
}

// DispatchOnce delivers one batch and returns how many events were published.
func (d *MirrorDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.outbox.ListPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox events: %w", err)
	}

	published := 0
	for i := range events {
		event := &events[i]

		pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := d.publisher.Publish(pubCtx, event)
		cancel()

		if err != nil {
			d.log.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", event.Attempts+1).
				Msg("mirror: delivery failed")
			if markErr := d.outbox.MarkFailed(ctx, event.ID, err.Error(), d.maxAttempts); markErr != nil {
				d.log.Error().Err(markErr).Str("event_id", event.ID.String()).Msg("mirror: failed to record attempt")
			}
			if event.Attempts+1 >= d.maxAttempts {
				d.log.Error().Str("event_id", event.ID.String()).Msg("mirror: all retry attempts exhausted")
			}
			continue
		}

		if err := d.outbox.MarkPublished(ctx, event.ID); err != nil {
			d.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("mirror: failed to mark published")
			continue
		}
		published++
		d.log.Debug().Str("event_id", event.ID.String()).Msg("mirror: delivered successfully")
	}
	return published, nil
}
