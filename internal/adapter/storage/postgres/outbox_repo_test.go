package postgres

import (
	"context"
	"testing"
	"time"

	"finguard-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	ev, err := domain.NewOutboxEvent(domain.EventTransferCommitted, uuid.New(), map[string]string{"k": "v"}, time.Now())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(ev.ID, ev.EventType, ev.AggregateID, []byte(ev.Payload), "PENDING",
			0, ev.LastError, ev.CreatedAt, ev.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_ListPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	id := uuid.New()
	agg := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	var noErr *string

	mock.ExpectQuery("SELECT .+ FROM outbox_events WHERE status = 'PENDING'").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "aggregate_id", "payload", "status",
			"attempts", "last_error", "created_at", "updated_at"}).
			AddRow(id, domain.EventTransferCommitted, agg, []byte(`{"amount":"40.00"}`), domain.OutboxStatusPending,
				1, noErr, now, now))

	events, err := repo.ListPending(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, agg, events[0].AggregateID)
	assert.JSONEq(t, `{"amount":"40.00"}`, string(events[0].Payload))
	assert.Equal(t, 1, events[0].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_MarkPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE outbox_events SET status = 'PUBLISHED'").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.MarkPublished(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_MarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE outbox_events SET attempts = attempts \\+ 1").
		WithArgs("mirror returned 502", 5, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.MarkFailed(context.Background(), id, "mirror returned 502", 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_MarkFailed_Unknown(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs("boom", 5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.MarkFailed(context.Background(), uuid.New(), "boom", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox event not found")
}
