package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

const (
	maxDLQErrorLen  = 1024
	defaultDLQLimit = 50
	maxDLQListLimit = 500
)

// ErrDLQEntryNotFound is returned by Requeue for an event that is not parked.
var ErrDLQEntryNotFound = errors.New("dlq entry not found")

// DLQFilter narrows List. Zero values match everything.
type DLQFilter struct {
	EventType enums.OutboxEventType
	Reason    enums.OutboxDLQErrorReason
	Limit     int
}

// DLQRepository stores outbox events the publisher gave up on. Rows keep the
// original envelope so an operator can requeue them after the cause is fixed,
// even once retention removed the source row.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx parks entry inside the publisher's batch transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns the parked copy of an event, or nil when none exists.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// List returns parked events, newest failure first.
func (r *DLQRepository) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDLQLimit
	}
	if limit > maxDLQListLimit {
		limit = maxDLQListLimit
	}
	query := r.db.WithContext(ctx)
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.Reason != "" {
		query = query.Where("error_reason = ?", filter.Reason)
	}
	var rows []models.OutboxDLQ
	err := query.Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// CountByReason reports the backlog per failure reason.
func (r *DLQRepository) CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error) {
	var rows []struct {
		ErrorReason enums.OutboxDLQErrorReason
		Total       int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("error_reason, COUNT(*) AS total").
		Group("error_reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.OutboxDLQErrorReason]int64, len(rows))
	for _, row := range rows {
		counts[row.ErrorReason] = row.Total
	}
	return counts, nil
}

// Requeue makes a parked event publishable again and drops its DLQ row. The
// outbox row is reset in place, or restored from the DLQ copy if retention
// already deleted it.
func (r *DLQRepository) Requeue(ctx context.Context, tx *gorm.DB, eventID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	var entry models.OutboxDLQ
	err := tx.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDLQEntryNotFound
	}
	if err != nil {
		return err
	}

	res := tx.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]any{
			"attempt_count": 0,
			"last_error":    nil,
			"published_at":  nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		restored := models.OutboxEvent{
			ID:            entry.EventID,
			EventType:     entry.EventType,
			AggregateType: entry.AggregateType,
			AggregateID:   entry.AggregateID,
			Payload:       entry.Payload,
		}
		if err := tx.WithContext(ctx).Create(&restored).Error; err != nil {
			return err
		}
	}
	return tx.WithContext(ctx).Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
