package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Member is a ledger account. Balance is a cache of the member's approved
// journal entries and is only written by the ledger.
type Member struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind              enums.MemberKind `gorm:"column:kind;type:text;not null;default:'member'"`
	DisplayName       string           `gorm:"column:display_name;not null"`
	Balance           decimal.Decimal  `gorm:"column:balance;type:numeric(18,2);not null;default:0"`
	Score             int              `gorm:"column:score;not null;default:0"`
	SecurityLockUntil *time.Time       `gorm:"column:security_lock_until"`
	Version           int64            `gorm:"column:version;not null;default:0"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Member) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsLocked reports whether withdrawals are blocked at now.
func (m *Member) IsLocked(now time.Time) bool {
	return m.SecurityLockUntil != nil && m.SecurityLockUntil.After(now)
}

func (Member) TableName() string { return "members" }
