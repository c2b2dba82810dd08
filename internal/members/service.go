package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
	"github.com/angelmondragon/cred30-backend/pkg/outbox/payloads"
)

// MaxScore is the top of the reputation scale pushed by the identity feed.
const MaxScore = 1000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes member account operations.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*MemberDTO, error)
	Get(ctx context.Context, memberID uuid.UUID) (*MemberDTO, error)
	UpdateScore(ctx context.Context, memberID uuid.UUID, score int) error
	SetSecurityLock(ctx context.Context, memberID uuid.UUID, until *time.Time) error
	Deposit(ctx context.Context, input DepositInput) (*models.Transaction, error)
	Withdraw(ctx context.Context, input WithdrawInput) (*models.Transaction, error)
}

// ServiceParams wires the members service.
type ServiceParams struct {
	Repo   Repository
	Ledger ledger.Service
	Outbox outbox.Emitter
	DB     txRunner
	Now    func() time.Time
}

type service struct {
	repo   Repository
	ledger ledger.Service
	outbox outbox.Emitter
	tx     txRunner
	now    func() time.Time
}

// NewService builds a members service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("members repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
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
		ledger: params.Ledger,
		outbox: params.Outbox,
		tx:     params.DB,
		now:    now,
	}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*MemberDTO, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name is required")
	}
	if err := validateScore(input.Score); err != nil {
		return nil, err
	}
	member := &models.Member{
		ID:          input.ID,
		Kind:        enums.MemberKindMember,
		DisplayName: name,
		Score:       input.Score,
	}
	if err := s.repo.Create(ctx, member); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create member")
	}
	return toDTO(member, 0), nil
}

func (s *service) Get(ctx context.Context, memberID uuid.UUID) (*MemberDTO, error) {
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	if member.Kind != enums.MemberKindMember {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	count, err := s.repo.CountActiveQuotas(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active quotas")
	}
	return toDTO(member, count), nil
}

func (s *service) UpdateScore(ctx context.Context, memberID uuid.UUID, score int) error {
	if err := validateScore(score); err != nil {
		return err
	}
	if err := s.repo.UpdateScore(ctx, memberID, score); err != nil {
		return mapLookupErr(err)
	}
	return nil
}

// SetSecurityLock blocks withdrawals until the given time. A nil until clears the lock.
func (s *service) SetSecurityLock(ctx context.Context, memberID uuid.UUID, until *time.Time) error {
	if until != nil {
		utc := until.UTC()
		until = &utc
	}
	if err := s.repo.UpdateSecurityLock(ctx, memberID, until); err != nil {
		return mapLookupErr(err)
	}
	return nil
}

func (s *service) Deposit(ctx context.Context, input DepositInput) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry := ledger.Entry{
			MemberID:    input.MemberID,
			Type:        enums.TransactionDeposit,
			Direction:   enums.DirectionCredit,
			Amount:      input.Amount,
			Description: "deposit",
		}
		if input.Reference != "" {
			entry.Metadata = map[string]any{"reference": input.Reference}
		}
		var err error
		txn, err = s.ledger.Apply(ctx, tx, entry)
		if err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventMemberDeposited,
			AggregateType: enums.AggregateMember,
			AggregateID:   input.MemberID,
			Data: payloads.MemberDepositedEvent{
				MemberID:      input.MemberID,
				TransactionID: txn.ID,
				Amount:        txn.Amount,
				Reference:     input.Reference,
			},
		}
		if input.ActorID != uuid.Nil {
			event.Actor = &outbox.ActorRef{MemberID: input.ActorID, Role: string(enums.MemberRoleAdmin)}
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		member, err := s.repo.WithTx(tx).LockByID(ctx, input.MemberID)
		if err != nil {
			return mapLookupErr(err)
		}
		if member.IsLocked(s.now()) {
			return pkgerrors.New(pkgerrors.CodeSecurityLock, "withdrawals are locked").
				WithDetails(map[string]any{"locked_until": member.SecurityLockUntil})
		}
		txn, err = s.ledger.Apply(ctx, tx, ledger.Entry{
			MemberID:    input.MemberID,
			Type:        enums.TransactionWithdrawal,
			Direction:   enums.DirectionDebit,
			Amount:      input.Amount,
			Description: "withdrawal",
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequested,
			AggregateType: enums.AggregateMember,
			AggregateID:   input.MemberID,
			Actor:         &outbox.ActorRef{MemberID: input.MemberID, Role: string(enums.MemberRoleMember)},
			Data: payloads.WithdrawalRequestedEvent{
				MemberID:      input.MemberID,
				TransactionID: txn.ID,
				Amount:        txn.Amount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func validateScore(score int) error {
	if score < 0 || score > MaxScore {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("score must be between 0 and %d", MaxScore))
	}
	return nil
}

func mapLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
}
