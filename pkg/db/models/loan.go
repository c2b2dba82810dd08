package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Loan is a mutual-credit obligation collateralized by the member's quotas.
type Loan struct {
	ID                    uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID              uuid.UUID        `gorm:"column:member_id;type:uuid;not null"`
	Principal             decimal.Decimal  `gorm:"column:principal;type:numeric(18,2);not null"`
	InterestRate          decimal.Decimal  `gorm:"column:interest_rate;type:numeric(6,4);not null"`
	Installments          int              `gorm:"column:installments;not null"`
	TotalRepayment        decimal.Decimal  `gorm:"column:total_repayment;type:numeric(18,2);not null"`
	InstallmentValue      decimal.Decimal  `gorm:"column:installment_value;type:numeric(18,2);not null"`
	Status                enums.LoanStatus `gorm:"column:status;type:text;not null"`
	DueDate               *time.Time       `gorm:"column:due_date"`
	TotalPaid             decimal.Decimal  `gorm:"column:total_paid;type:numeric(18,2);not null;default:0"`
	PaidInstallmentsCount int              `gorm:"column:paid_installments_count;not null;default:0"`
	ApprovedAt            *time.Time       `gorm:"column:approved_at"`
	PaidAt                *time.Time       `gorm:"column:paid_at"`
	OverdueNotifiedAt     *time.Time       `gorm:"column:overdue_notified_at"`
	CreatedAt             time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Remaining is what is still owed on the loan.
func (l Loan) Remaining() decimal.Decimal {
	return l.TotalRepayment.Sub(l.TotalPaid)
}

func (Loan) TableName() string { return "loans" }
