package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Listing is a marketplace item offered by a member.
type Listing struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID     uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	Title        string              `gorm:"column:title;not null"`
	Description  *string             `gorm:"column:description"`
	Price        decimal.Decimal     `gorm:"column:price;type:numeric(18,2);not null"`
	Status       enums.ListingStatus `gorm:"column:status;type:text;not null;default:'ACTIVE'"`
	BoostedUntil *time.Time          `gorm:"column:boosted_until"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (Listing) TableName() string { return "listings" }
