package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/types"
)

// Transaction is an append-only journal entry. Only Status, the balance
// snapshots, RejectReason and ResolvedAt change after insert, and only once.
type Transaction struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID      uuid.UUID               `gorm:"column:member_id;type:uuid;not null"`
	Type          enums.TransactionType   `gorm:"column:type;type:text;not null"`
	Direction     enums.Direction         `gorm:"column:direction;type:text;not null"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null"`
	Status        enums.TransactionStatus `gorm:"column:status;type:text;not null"`
	BalanceBefore *decimal.Decimal        `gorm:"column:balance_before;type:numeric(18,2)"`
	BalanceAfter  *decimal.Decimal        `gorm:"column:balance_after;type:numeric(18,2)"`
	ReferenceType *string                 `gorm:"column:reference_type"`
	ReferenceID   *uuid.UUID              `gorm:"column:reference_id;type:uuid"`
	Description   *string                 `gorm:"column:description"`
	Metadata      types.JSONMap           `gorm:"column:metadata;type:jsonb"`
	RejectReason  *string                 `gorm:"column:reject_reason"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt    *time.Time              `gorm:"column:resolved_at"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Signed returns the amount with the sign of its direction.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == enums.DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (Transaction) TableName() string { return "transactions" }
