package members

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Repository persists member profile fields. Balances are written by the ledger only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, member *models.Member) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score int) error
	UpdateSecurityLock(ctx context.Context, id uuid.UUID, until *time.Time) error
	CountActiveQuotas(ctx context.Context, memberID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a members repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) UpdateScore(ctx context.Context, id uuid.UUID, score int) error {
	return r.updateColumns(ctx, id, map[string]any{"score": score})
}

func (r *repository) UpdateSecurityLock(ctx context.Context, id uuid.UUID, until *time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{"security_lock_until": until})
}

func (r *repository) CountActiveQuotas(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Quota{}).
		Where("member_id = ? AND status = ?", memberID, enums.QuotaActive).
		Count(&count).Error
	return count, err
}

func (r *repository) updateColumns(ctx context.Context, id uuid.UUID, values map[string]any) error {
	values["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ? AND kind = ?", id, enums.MemberKindMember).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
