package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Settlement tracks an external gateway payment from request to confirmation.
// Reference is ours; ExternalID is the gateway's and is unique once known.
type Settlement struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference            string                  `gorm:"column:reference;not null"`
	ExternalID           *string                 `gorm:"column:external_id"`
	MemberID             uuid.UUID               `gorm:"column:member_id;type:uuid;not null"`
	LoanID               *uuid.UUID              `gorm:"column:loan_id;type:uuid"`
	Purpose              enums.SettlementPurpose `gorm:"column:purpose;type:text;not null"`
	Method               enums.PaymentMethod     `gorm:"column:method;type:text;not null"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null"`
	Status               enums.SettlementStatus  `gorm:"column:status;type:text;not null"`
	FailureReason        *string                 `gorm:"column:failure_reason"`
	PendingTransactionID uuid.UUID               `gorm:"column:pending_transaction_id;type:uuid;not null"`
	SettledAt            *time.Time              `gorm:"column:settled_at"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Settlement) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Settlement) TableName() string { return "settlements" }
