package credit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Repository persists loans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error)
	Create(ctx context.Context, loan *models.Loan) error
	Save(ctx context.Context, loan *models.Loan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error)
	ListApprovedByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error)
	CountOutstanding(ctx context.Context, memberID uuid.UUID) (int64, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Loan, error)
	ListUnflaggedOverdue(ctx context.Context, now time.Time, limit int) ([]models.Loan, error)
	MarkOverdueNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a loan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND kind = ?", memberID, enums.MemberKindMember).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *repository) Save(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ?", loan.ID).
		Updates(map[string]any{
			"status":                  loan.Status,
			"due_date":                loan.DueDate,
			"total_paid":              loan.TotalPaid,
			"paid_installments_count": loan.PaidInstallmentsCount,
			"approved_at":             loan.ApprovedAt,
			"paid_at":                 loan.PaidAt,
			"updated_at":              time.Now().UTC(),
		}).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&loan).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) ListByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListApprovedByMember(ctx context.Context, memberID uuid.UUID) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, enums.LoanApproved).
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountOutstanding(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("member_id = ? AND status IN ?", memberID, enums.OutstandingLoanStatuses()).
		Count(&count).Error
	return count, err
}

func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", enums.LoanApproved, now).
		Order("due_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListUnflaggedOverdue(ctx context.Context, now time.Time, limit int) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ? AND overdue_notified_at IS NULL", enums.LoanApproved, now).
		Order("due_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkOverdueNotified returns false when another worker already flagged the loan.
func (r *repository) MarkOverdueNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND overdue_notified_at IS NULL", id).
		Update("overdue_notified_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
