package governance

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// ProposalDTO reports vote power, not head counts.
type ProposalDTO struct {
	ID          uuid.UUID            `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      enums.ProposalStatus `json:"status"`
	YesVotes    int64                `json:"yes_votes"`
	NoVotes     int64                `json:"no_votes"`
	CreatedBy   *uuid.UUID           `json:"created_by,omitempty"`
	ClosedAt    *time.Time           `json:"closed_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

type VoteDTO struct {
	ID         uuid.UUID        `json:"id"`
	ProposalID uuid.UUID        `json:"proposal_id"`
	MemberID   uuid.UUID        `json:"member_id"`
	Choice     enums.VoteChoice `json:"choice"`
	Weight     int              `json:"weight"`
	CreatedAt  time.Time        `json:"created_at"`
}

type CreateProposalInput struct {
	Title       string
	Description string
	CreatedBy   uuid.UUID
}

type CastVoteInput struct {
	ProposalID uuid.UUID
	MemberID   uuid.UUID
	Choice     enums.VoteChoice
}

func toProposalDTO(p models.Proposal) *ProposalDTO {
	return &ProposalDTO{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Status:      p.Status,
		YesVotes:    p.YesVotes,
		NoVotes:     p.NoVotes,
		CreatedBy:   p.CreatedBy,
		ClosedAt:    p.ClosedAt,
		CreatedAt:   p.CreatedAt,
	}
}

func toVoteDTO(v models.Vote) *VoteDTO {
	return &VoteDTO{
		ID:         v.ID,
		ProposalID: v.ProposalID,
		MemberID:   v.MemberID,
		Choice:     v.Choice,
		Weight:     v.Weight,
		CreatedAt:  v.CreatedAt,
	}
}
