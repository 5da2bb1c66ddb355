package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"finguard-ledger/internal/core/domain"
	"finguard-ledger/internal/core/ports/mocks"
	"finguard-ledger/pkg/clock"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestEvent(t *testing.T) *domain.OutboxEvent {
	t.Helper()
	txn := &domain.Transaction{
		ID: uuid.New(), SenderID: "alice", ReceiverID: "bob", Amount: money("40.00"),
		Type: domain.TransactionTypeTransfer, Timestamp: testNow,
	}
	ev, err := domain.NewOutboxEvent(domain.EventTransferCommitted, txn.ID, domain.NewMirrorTransfer(txn), testNow)
	require.NoError(t, err)
	return ev
}

func TestHTTPMirrorPublisher_SignsBody(t *testing.T) {
	const secret = "mirror-secret"
	sig := NewHMACSignatureService()
	event := newTestEvent(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, event.ID.String(), r.Header.Get(HeaderEventID))
		assert.Equal(t, strconv.FormatInt(testNow.Unix(), 10), r.Header.Get(HeaderSignatureTimestamp))
		assert.True(t, sig.Verify(secret, testNow.Unix(), body, r.Header.Get(HeaderSignature)))

		var env MirrorEnvelope
		require.NoError(t, json.Unmarshal(body, &env))
		assert.Equal(t, domain.EventTransferCommitted, env.EventType)
		assert.Equal(t, event.AggregateID.String(), env.AggregateID)
		assert.Equal(t, testNow.Unix(), env.CreatedAt)

		var payload domain.MirrorTransfer
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		assert.Equal(t, "40.00", payload.Amount)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	pub := NewHTTPMirrorPublisher(server.URL, secret, sig, server.Client(), clock.NewFake(testNow))
	require.NoError(t, pub.Publish(context.Background(), event))
}

func TestHTTPMirrorPublisher_Non2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	pub := NewHTTPMirrorPublisher(server.URL, "s", NewHMACSignatureService(), server.Client(), clock.NewFake(testNow))
	err := pub.Publish(context.Background(), newTestEvent(t))
	assert.ErrorContains(t, err, "status 502")
}

func TestMirrorDispatcher_DispatchOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutboxRepository(ctrl)
	publisher := mocks.NewMockMirrorPublisher(ctrl)
	d := NewMirrorDispatcher(outbox, publisher, MirrorDispatcherConfig{BatchSize: 10, MaxAttempts: 3}, newTestLogger())
	ctx := context.Background()

	ok := *newTestEvent(t)
	failing := *newTestEvent(t)
	failing.Attempts = 2

	outbox.EXPECT().ListPending(ctx, 10).Return([]domain.OutboxEvent{ok, failing}, nil)
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, e *domain.OutboxEvent) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			if e.ID == failing.ID {
				return errors.New("connection refused")
			}
			return nil
		},
	).Times(2)
	outbox.EXPECT().MarkPublished(ctx, ok.ID).Return(nil)
	outbox.EXPECT().MarkFailed(ctx, failing.ID, "connection refused", 3).Return(nil)

	n, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMirrorDispatcher_ListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutboxRepository(ctrl)
	d := NewMirrorDispatcher(outbox, mocks.NewMockMirrorPublisher(ctrl), MirrorDispatcherConfig{}, newTestLogger())

	outbox.EXPECT().ListPending(gomock.Any(), 50).Return(nil, errors.New("db down"))
	_, err := d.DispatchOnce(context.Background())
	assert.ErrorContains(t, err, "list pending outbox events")
}

// End to end over the memory outbox: a mirror outage delays delivery but
// never touches balances.
func TestMirrorDispatcher_DrainsOutboxAfterOutage(t *testing.T) {
	h := newHarness(t, harnessConfig{})
	h.open(t, "alice", "100.00")
	h.open(t, "bob", "0")
	_, err := h.transfer("alice", "bob", "40.00")
	require.NoError(t, err)

	var up atomic.Bool
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := NewHTTPMirrorPublisher(server.URL, "s", NewHMACSignatureService(), server.Client(), clock.NewFake(testNow))
	d := NewMirrorDispatcher(h.outbox, pub, MirrorDispatcherConfig{MaxAttempts: 5, Timeout: time.Second}, newTestLogger())
	ctx := context.Background()

	n, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	h.assertBalance(t, "bob", "40.00")

	up.Store(true)
	n, err = d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(2), received.Load())

	pending, err := h.outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
