package outbox_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/testdb"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
)

func parked(event models.OutboxEvent, reason enums.OutboxDLQErrorReason, failedAt time.Time) models.OutboxDLQ {
	msg := "gateway said no"
	return models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt,
	}
}

func loanEvent(eventType enums.OutboxEventType) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateLoan,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"e","data":{}}`),
		AttemptCount:  10,
	}
}

func TestDLQListFiltersAndCounts(t *testing.T) {
	conn := testdb.Open(t)
	repo := outbox.NewDLQRepository(conn)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	disbursed := loanEvent(enums.EventLoanDisbursed)
	overdue := loanEvent(enums.EventLoanOverdue)
	paid := loanEvent(enums.EventLoanPaid)
	require.NoError(t, repo.InsertTx(conn, parked(disbursed, enums.OutboxDLQReasonMaxAttempts, base)))
	require.NoError(t, repo.InsertTx(conn, parked(overdue, enums.OutboxDLQReasonNonRetryable, base.Add(time.Hour))))
	require.NoError(t, repo.InsertTx(conn, parked(paid, enums.OutboxDLQReasonMaxAttempts, base.Add(2*time.Hour))))

	all, err := repo.List(ctx, outbox.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, paid.ID, all[0].EventID)

	maxed, err := repo.List(ctx, outbox.DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts, Limit: 1})
	require.NoError(t, err)
	require.Len(t, maxed, 1)
	assert.Equal(t, paid.ID, maxed[0].EventID)

	byType, err := repo.List(ctx, outbox.DLQFilter{EventType: enums.EventLoanOverdue})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, overdue.ID, byType[0].EventID)

	counts, err := repo.CountByReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[enums.OutboxDLQReasonMaxAttempts])
	assert.Equal(t, int64(1), counts[enums.OutboxDLQReasonNonRetryable])
}

func TestDLQInsertTruncatesErrors(t *testing.T) {
	conn := testdb.Open(t)
	repo := outbox.NewDLQRepository(conn)
	event := loanEvent(enums.EventLoanPaid)
	entry := parked(event, enums.OutboxDLQReasonNonRetryable, time.Time{})
	long := strings.Repeat("x", 5000)
	entry.ErrorMessage = &long

	require.NoError(t, repo.InsertTx(conn, entry))
	assert.Error(t, repo.InsertTx(nil, entry))

	stored, err := repo.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, *stored.ErrorMessage, 1024)
	assert.False(t, stored.FailedAt.IsZero())

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQRequeueResetsOrRestoresTheEvent(t *testing.T) {
	conn := testdb.Open(t)
	repo := outbox.NewDLQRepository(conn)
	ctx := context.Background()

	kept := loanEvent(enums.EventLoanDisbursed)
	require.NoError(t, conn.Create(&kept).Error)
	require.NoError(t, repo.InsertTx(conn, parked(kept, enums.OutboxDLQReasonMaxAttempts, time.Now())))

	purged := loanEvent(enums.EventLoanPaid)
	require.NoError(t, repo.InsertTx(conn, parked(purged, enums.OutboxDLQReasonMaxAttempts, time.Now())))

	for _, id := range []uuid.UUID{kept.ID, purged.ID} {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return repo.Requeue(ctx, tx, id)
		}))
		var event models.OutboxEvent
		require.NoError(t, conn.Where("id = ?", id).First(&event).Error)
		assert.Zero(t, event.AttemptCount)
		assert.Nil(t, event.PublishedAt)
		assert.Nil(t, event.LastError)

		stored, err := repo.FindByEventID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, stored)
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.Requeue(ctx, tx, uuid.New())
	})
	assert.ErrorIs(t, err, outbox.ErrDLQEntryNotFound)
}
