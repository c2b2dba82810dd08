package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Quota is one share of cooperative ownership.
type Quota struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID      uuid.UUID         `gorm:"column:member_id;type:uuid;not null"`
	PurchasePrice decimal.Decimal   `gorm:"column:purchase_price;type:numeric(18,2);not null"`
	CurrentValue  decimal.Decimal   `gorm:"column:current_value;type:numeric(18,2);not null"`
	PurchaseDate  time.Time         `gorm:"column:purchase_date;not null"`
	Status        enums.QuotaStatus `gorm:"column:status;type:text;not null"`
	ValuedAt      *time.Time        `gorm:"column:valued_at"`
	SoldAt        *time.Time        `gorm:"column:sold_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (q *Quota) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

func (Quota) TableName() string { return "quotas" }
