package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/pkg/db"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
	"github.com/angelmondragon/cred30-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// QuotaReader reads the active quota snapshot that becomes vote weight.
type QuotaReader interface {
	ActiveSummary(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (quotas.Summary, error)
}

// Policy gates who may vote.
type Policy struct {
	MinActiveQuotas int64
	MinScore        int
}

// DefaultPolicy requires five active quotas and a score of 500.
func DefaultPolicy() Policy {
	return Policy{MinActiveQuotas: 5, MinScore: 500}
}

// Service tallies quota-weighted votes.
type Service interface {
	CreateProposal(ctx context.Context, input CreateProposalInput) (*ProposalDTO, error)
	GetProposal(ctx context.Context, proposalID uuid.UUID) (*ProposalDTO, error)
	ListProposals(ctx context.Context, status enums.ProposalStatus) ([]ProposalDTO, error)
	CastVote(ctx context.Context, input CastVoteInput) (*VoteDTO, error)
	CloseProposal(ctx context.Context, proposalID, adminID uuid.UUID) (*ProposalDTO, error)
}

type ServiceParams struct {
	Repo   Repository
	Quotas QuotaReader
	Outbox outbox.Emitter
	DB     txRunner
	Policy Policy
	Now    func() time.Time
}

type service struct {
	repo   Repository
	quotas QuotaReader
	outbox outbox.Emitter
	tx     txRunner
	policy Policy
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("governance repository required")
	}
	if params.Quotas == nil {
		return nil, fmt.Errorf("quota reader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:   params.Repo,
		quotas: params.Quotas,
		outbox: params.Outbox,
		tx:     params.DB,
		policy: params.Policy,
		now:    now,
	}, nil
}

func (s *service) CreateProposal(ctx context.Context, input CreateProposalInput) (*ProposalDTO, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title and description are required")
	}
	createdBy := input.CreatedBy
	proposal := &models.Proposal{
		Title:       title,
		Description: description,
		Status:      enums.ProposalActive,
		CreatedBy:   &createdBy,
	}
	if err := s.repo.CreateProposal(ctx, proposal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create proposal")
	}
	return toProposalDTO(*proposal), nil
}

func (s *service) GetProposal(ctx context.Context, proposalID uuid.UUID) (*ProposalDTO, error) {
	proposal, err := s.repo.FindProposal(ctx, proposalID)
	if err != nil {
		return nil, mapProposalErr(err)
	}
	return toProposalDTO(*proposal), nil
}

func (s *service) ListProposals(ctx context.Context, status enums.ProposalStatus) ([]ProposalDTO, error) {
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid proposal status %q", status))
	}
	rows, err := s.repo.ListProposals(ctx, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list proposals")
	}
	out := make([]ProposalDTO, len(rows))
	for i, row := range rows {
		out[i] = *toProposalDTO(row)
	}
	return out, nil
}

// CastVote snapshots the member's active quota count as the vote weight. Later
// quota sales do not change a tally already recorded.
func (s *service) CastVote(ctx context.Context, input CastVoteInput) (*VoteDTO, error) {
	if !input.Choice.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid vote choice %q", input.Choice))
	}

	var vote *models.Vote
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		proposal, err := repo.LockProposal(ctx, input.ProposalID)
		if err != nil {
			return mapProposalErr(err)
		}
		if proposal.Status != enums.ProposalActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal is closed")
		}

		member, err := repo.LockMember(ctx, input.MemberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock member")
		}

		if _, err := repo.FindVote(ctx, proposal.ID, member.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeAlreadyVoted, "member already voted on this proposal")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing vote")
		}

		summary, err := s.quotas.ActiveSummary(ctx, tx, member.ID)
		if err != nil {
			return err
		}
		if summary.Count < s.policy.MinActiveQuotas || member.Score < s.policy.MinScore {
			return pkgerrors.New(pkgerrors.CodeIneligible, "member does not meet voting requirements").
				WithDetails(map[string]any{
					"active_quotas":          summary.Count,
					"required_active_quotas": s.policy.MinActiveQuotas,
					"score":                  member.Score,
					"required_score":         s.policy.MinScore,
				})
		}

		vote = &models.Vote{
			ProposalID: proposal.ID,
			MemberID:   member.ID,
			Choice:     input.Choice,
			Weight:     int(summary.Count),
		}
		if err := repo.CreateVote(ctx, vote); err != nil {
			if db.IsUniqueViolation(err, voteUniqueConstraint) {
				return pkgerrors.New(pkgerrors.CodeAlreadyVoted, "member already voted on this proposal")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record vote")
		}
		if err := repo.AddWeight(ctx, proposal.ID, vote.Choice, vote.Weight); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "tally vote")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toVoteDTO(*vote), nil
}

func (s *service) CloseProposal(ctx context.Context, proposalID, adminID uuid.UUID) (*ProposalDTO, error) {
	var proposal *models.Proposal
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		proposal, err = repo.LockProposal(ctx, proposalID)
		if err != nil {
			return mapProposalErr(err)
		}
		if proposal.Status != enums.ProposalActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal already closed")
		}

		now := s.now()
		if err := repo.Close(ctx, proposal.ID, now); err != nil {
			if errors.Is(err, errProposalClosed) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal already closed")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close proposal")
		}
		proposal.Status = enums.ProposalClosed
		proposal.ClosedAt = &now

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProposalClosed,
			AggregateType: enums.AggregateProposal,
			AggregateID:   proposal.ID,
			Actor:         &outbox.ActorRef{MemberID: adminID, Role: string(enums.MemberRoleAdmin)},
			Data: payloads.ProposalClosedEvent{
				ProposalID: proposal.ID,
				YesVotes:   proposal.YesVotes,
				NoVotes:    proposal.NoVotes,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return toProposalDTO(*proposal), nil
}

func mapProposalErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "proposal not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load proposal")
}
