package settlements

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

var errNotPending = errors.New("settlement is not pending")

// Repository persists settlements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, settlement *models.Settlement) error
	FindByReference(ctx context.Context, reference string) (*models.Settlement, error)
	LockByReference(ctx context.Context, reference string) (*models.Settlement, error)
	ExternalIDExists(ctx context.Context, externalID string) (bool, error)
	Resolve(ctx context.Context, settlement *models.Settlement) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Settlement, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Settlement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlements repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&settlement).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) LockByReference(ctx context.Context, reference string) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("external_id = ?", externalID).
		Count(&count).Error
	return count > 0, err
}

// Resolve writes the terminal state of a settlement that is still pending.
func (r *repository) Resolve(ctx context.Context, settlement *models.Settlement) error {
	res := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ? AND status = ?", settlement.ID, enums.SettlementPending).
		Updates(map[string]any{
			"status":         settlement.Status,
			"external_id":    settlement.ExternalID,
			"failure_reason": settlement.FailureReason,
			"settled_at":     settlement.SettledAt,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errNotPending
	}
	return nil
}

func (r *repository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.SettlementPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
