package quotas

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Repository persists quota rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockMember(ctx context.Context, memberID uuid.UUID) error
	CreateBatch(ctx context.Context, quotas []models.Quota) error
	LockByID(ctx context.Context, id uuid.UUID) (*models.Quota, error)
	LockActiveByMember(ctx context.Context, memberID uuid.UUID) ([]models.Quota, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Quota, error)
	ListActiveByMember(ctx context.Context, memberID uuid.UUID) ([]models.Quota, error)
	MarkSold(ctx context.Context, id uuid.UUID, soldAt time.Time) error
	UpdateValuation(ctx context.Context, id uuid.UUID, value decimal.Decimal, valuedAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a quota repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockMember serializes quota operations with loan requests for the same member.
func (r *repository) LockMember(ctx context.Context, memberID uuid.UUID) error {
	var member models.Member
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ? AND kind = ?", memberID, enums.MemberKindMember).
		First(&member).Error
}

func (r *repository) CreateBatch(ctx context.Context, quotas []models.Quota) error {
	if len(quotas) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&quotas).Error
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Quota, error) {
	var quota models.Quota
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&quota).Error
	if err != nil {
		return nil, err
	}
	return &quota, nil
}

func (r *repository) LockActiveByMember(ctx context.Context, memberID uuid.UUID) ([]models.Quota, error) {
	var rows []models.Quota
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("member_id = ? AND status = ?", memberID, enums.QuotaActive).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Quota, error) {
	var rows []models.Quota
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("purchase_date DESC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListActiveByMember(ctx context.Context, memberID uuid.UUID) ([]models.Quota, error) {
	var rows []models.Quota
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, enums.QuotaActive).
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkSold(ctx context.Context, id uuid.UUID, soldAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Quota{}).
		Where("id = ? AND status = ?", id, enums.QuotaActive).
		Updates(map[string]any{
			"status":     enums.QuotaSold,
			"sold_at":    soldAt,
			"updated_at": soldAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errNotActive
	}
	return nil
}

func (r *repository) UpdateValuation(ctx context.Context, id uuid.UUID, value decimal.Decimal, valuedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Quota{}).
		Where("id = ? AND status = ?", id, enums.QuotaActive).
		Updates(map[string]any{
			"current_value": value,
			"valued_at":     valuedAt,
			"updated_at":    valuedAt,
		}).Error
}
