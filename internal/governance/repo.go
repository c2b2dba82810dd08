package governance

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

// voteUniqueConstraint backs the one-vote-per-member rule.
const voteUniqueConstraint = "ux_votes_proposal_member"

var errProposalClosed = errors.New("proposal is not active")

// Repository persists proposals and votes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateProposal(ctx context.Context, proposal *models.Proposal) error
	FindProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	LockProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	ListProposals(ctx context.Context, status enums.ProposalStatus) ([]models.Proposal, error)
	LockMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	FindVote(ctx context.Context, proposalID, memberID uuid.UUID) (*models.Vote, error)
	CreateVote(ctx context.Context, vote *models.Vote) error
	AddWeight(ctx context.Context, proposalID uuid.UUID, choice enums.VoteChoice, weight int) error
	Close(ctx context.Context, id uuid.UUID, closedAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a governance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateProposal(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Create(proposal).Error
}

func (r *repository) FindProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&proposal).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (r *repository) LockProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&proposal).Error
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// ListProposals filters by status when one is given.
func (r *repository) ListProposals(ctx context.Context, status enums.ProposalStatus) ([]models.Proposal, error) {
	query := r.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var rows []models.Proposal
	err := query.Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) LockMember(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND kind = ?", id, enums.MemberKindMember).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *repository) FindVote(ctx context.Context, proposalID, memberID uuid.UUID) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).
		Where("proposal_id = ? AND member_id = ?", proposalID, memberID).
		First(&vote).Error
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (r *repository) CreateVote(ctx context.Context, vote *models.Vote) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

// AddWeight accumulates vote power on the proposal row.
func (r *repository) AddWeight(ctx context.Context, proposalID uuid.UUID, choice enums.VoteChoice, weight int) error {
	column := "no_votes"
	if choice == enums.VoteYes {
		column = "yes_votes"
	}
	return r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("id = ?", proposalID).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", weight),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) Close(ctx context.Context, id uuid.UUID, closedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, enums.ProposalActive).
		Updates(map[string]any{
			"status":    enums.ProposalClosed,
			"closed_at": closedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errProposalClosed
	}
	return nil
}
