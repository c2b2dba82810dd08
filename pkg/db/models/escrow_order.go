package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/types"
)

// EscrowOrder holds buyer funds in the system pool until the buyer confirms receipt.
type EscrowOrder struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID     uuid.UUID                 `gorm:"column:listing_id;type:uuid;not null"`
	BuyerID       uuid.UUID                 `gorm:"column:buyer_id;type:uuid;not null"`
	SellerID      uuid.UUID                 `gorm:"column:seller_id;type:uuid;not null"`
	Amount        decimal.Decimal           `gorm:"column:amount;type:numeric(18,2);not null"`
	SellerAmount  decimal.Decimal           `gorm:"column:seller_amount;type:numeric(18,2);not null"`
	FeeAmount     decimal.Decimal           `gorm:"column:fee_amount;type:numeric(18,2);not null"`
	Status        enums.EscrowOrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentMethod enums.MarketPaymentMethod `gorm:"column:payment_method;type:text;not null"`
	Installments  *int                      `gorm:"column:installments"`
	LoanID        *uuid.UUID                `gorm:"column:loan_id;type:uuid"`
	DeliveryInfo  *types.DeliveryInfo       `gorm:"column:delivery_info;type:jsonb"`
	CompletedAt   *time.Time                `gorm:"column:completed_at"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *EscrowOrder) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (EscrowOrder) TableName() string { return "escrow_orders" }
