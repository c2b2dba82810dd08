package marketplace

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

var errOrderNotWaiting = errors.New("escrow order is not waiting for shipping")

// Repository persists listings and escrow orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	MemberExists(ctx context.Context, id uuid.UUID) (bool, error)
	CreateListing(ctx context.Context, listing *models.Listing) error
	FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	LockListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	UpdateListing(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListActiveListings(ctx context.Context, limit int) ([]models.Listing, error)
	CreateOrder(ctx context.Context, order *models.EscrowOrder) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.EscrowOrder, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.EscrowOrder, error)
	CompleteOrder(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	ListOrdersByMember(ctx context.Context, memberID uuid.UUID) ([]models.EscrowOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a marketplace repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) MemberExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ? AND kind = ?", id, enums.MemberKindMember).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateListing(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) LockListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&listing).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) UpdateListing(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListActiveListings returns boosted listings first, newest first within each group.
func (r *repository) ListActiveListings(ctx context.Context, limit int) ([]models.Listing, error) {
	var rows []models.Listing
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.ListingActive).
		Order("CASE WHEN boosted_until IS NULL THEN 1 ELSE 0 END").
		Order("boosted_until DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateOrder(ctx context.Context, order *models.EscrowOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.EscrowOrder, error) {
	var order models.EscrowOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.EscrowOrder, error) {
	var order models.EscrowOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CompleteOrder releases the order exactly once.
func (r *repository) CompleteOrder(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowOrder{}).
		Where("id = ? AND status = ?", id, enums.EscrowWaitingShipping).
		Updates(map[string]any{
			"status":       enums.EscrowCompleted,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errOrderNotWaiting
	}
	return nil
}

func (r *repository) ListOrdersByMember(ctx context.Context, memberID uuid.UUID) ([]models.EscrowOrder, error) {
	var rows []models.EscrowOrder
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", memberID, memberID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
