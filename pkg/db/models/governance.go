package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Proposal accumulates quota-weighted vote power, not head counts.
type Proposal struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title       string               `gorm:"column:title;not null"`
	Description string               `gorm:"column:description;not null"`
	Status      enums.ProposalStatus `gorm:"column:status;type:text;not null"`
	YesVotes    int64                `gorm:"column:yes_votes;not null;default:0"`
	NoVotes     int64                `gorm:"column:no_votes;not null;default:0"`
	CreatedBy   *uuid.UUID           `gorm:"column:created_by;type:uuid"`
	ClosedAt    *time.Time           `gorm:"column:closed_at"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Proposal) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Vote is immutable once cast; Weight is the member's active quota count at cast time.
type Vote struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProposalID uuid.UUID        `gorm:"column:proposal_id;type:uuid;not null"`
	MemberID   uuid.UUID        `gorm:"column:member_id;type:uuid;not null"`
	Choice     enums.VoteChoice `gorm:"column:choice;type:text;not null"`
	Weight     int              `gorm:"column:weight;not null"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (v *Vote) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (Proposal) TableName() string { return "proposals" }

func (Vote) TableName() string { return "votes" }
