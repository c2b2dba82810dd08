package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/pagination"
)

// errStaleMember is returned when the member row changed between lock and write.
var errStaleMember = errors.New("member version changed during update")

// Repository manages persistence for members and journal entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	LockMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	UpdateBalance(ctx context.Context, member *models.Member, balance decimal.Decimal) error
	AdjustSystemBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	LockTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ResolveTransaction(ctx context.Context, txn *models.Transaction) error
	ListTransactions(ctx context.Context, memberID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Transaction, error)
	ListApproved(ctx context.Context, memberID uuid.UUID) ([]models.Transaction, error)
	ListMemberIDs(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) LockMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
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

// UpdateBalance writes the new cached balance guarded by the member version.
func (r *repository) UpdateBalance(ctx context.Context, member *models.Member, balance decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ? AND version = ?", member.ID, member.Version).
		Updates(map[string]any{
			"balance":    balance,
			"version":    member.Version + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errStaleMember
	}
	member.Balance = balance
	member.Version++
	return nil
}

// AdjustSystemBalance adds delta to a system account in a single statement and
// returns the balance this transaction now sees. System rows carry no version.
func (r *repository) AdjustSystemBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ? AND kind = ?", id, enums.MemberKindSystem).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return decimal.Zero, res.Error
	}
	if res.RowsAffected != 1 {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	var member models.Member
	if err := r.db.WithContext(ctx).Select("balance").Where("id = ?", id).First(&member).Error; err != nil {
		return decimal.Zero, err
	}
	return member.Balance, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) LockTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ResolveTransaction moves a PENDING entry to its terminal state exactly once.
func (r *repository) ResolveTransaction(ctx context.Context, txn *models.Transaction) error {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, enums.TransactionPending).
		Updates(map[string]any{
			"status":         txn.Status,
			"balance_before": txn.BalanceBefore,
			"balance_after":  txn.BalanceAfter,
			"reject_reason":  txn.RejectReason,
			"resolved_at":    txn.ResolvedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errAlreadyResolved
	}
	return nil
}

func (r *repository) ListTransactions(ctx context.Context, memberID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).Where("member_id = ?", memberID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Transaction
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListApproved(ctx context.Context, memberID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND status = ?", memberID, enums.TransactionApproved).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListMemberIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}
