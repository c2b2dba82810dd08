package quotas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/money"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
	"github.com/angelmondragon/cred30-backend/pkg/outbox/payloads"
)

// MaxPurchaseQuantity caps a single purchase.
const MaxPurchaseQuantity = 100

var errNotActive = errors.New("quota is not active")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LoanChecker reports whether a member has a loan that locks their collateral.
type LoanChecker interface {
	HasOutstanding(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (bool, error)
}

// Service manages quota purchases, redemptions and valuations.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error)
	Redeem(ctx context.Context, memberID, quotaID uuid.UUID) (*RedeemResult, error)
	RedeemAll(ctx context.Context, memberID uuid.UUID) (*RedeemResult, error)
	ApplyValuation(ctx context.Context, quotaID uuid.UUID, value decimal.Decimal) (*QuotaDTO, error)
	List(ctx context.Context, memberID uuid.UUID) ([]QuotaDTO, error)
	ActiveSummary(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (Summary, error)
}

// ServiceParams wires the quota service.
type ServiceParams struct {
	Repo   Repository
	Ledger ledger.Service
	Outbox outbox.Emitter
	DB     txRunner
	Loans  LoanChecker
	Policy Policy
	Now    func() time.Time
}

type service struct {
	repo   Repository
	ledger ledger.Service
	outbox outbox.Emitter
	tx     txRunner
	loans  LoanChecker
	policy Policy
	now    func() time.Time
}

// NewService builds a quota service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quota repository required")
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
	if params.Loans == nil {
		return nil, fmt.Errorf("loan checker required")
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
		loans:  params.Loans,
		policy: params.Policy,
		now:    now,
	}, nil
}

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	if input.Quantity < 1 || input.Quantity > MaxPurchaseQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", MaxPurchaseQuantity))
	}
	if err := money.ValidateAmount(input.UnitPrice); err != nil {
		return nil, err
	}
	total := input.UnitPrice.Mul(decimal.NewFromInt(int64(input.Quantity)))

	var result *PurchaseResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		batchID := uuid.New()
		transfer, err := s.ledger.Transfer(ctx, tx, ledger.Transfer{
			From:        input.MemberID,
			To:          ledger.SystemPoolID,
			Type:        enums.TransactionQuotaPurchase,
			Amount:      total,
			Reference:   &ledger.Reference{Type: "quota_purchase", ID: batchID},
			Description: fmt.Sprintf("purchase of %d quota(s)", input.Quantity),
			Metadata:    map[string]any{"quantity": input.Quantity, "unit_price": input.UnitPrice.String()},
		})
		if err != nil {
			return err
		}

		rows := make([]models.Quota, input.Quantity)
		ids := make([]uuid.UUID, input.Quantity)
		for i := range rows {
			rows[i] = models.Quota{
				ID:            uuid.New(),
				MemberID:      input.MemberID,
				PurchasePrice: input.UnitPrice,
				CurrentValue:  input.UnitPrice,
				PurchaseDate:  now,
				Status:        enums.QuotaActive,
			}
			ids[i] = rows[i].ID
		}
		if err := s.repo.WithTx(tx).CreateBatch(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create quotas")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuotasPurchased,
			AggregateType: enums.AggregateMember,
			AggregateID:   input.MemberID,
			Actor:         &outbox.ActorRef{MemberID: input.MemberID, Role: string(enums.MemberRoleMember)},
			Data: payloads.QuotasPurchasedEvent{
				MemberID:  input.MemberID,
				QuotaIDs:  ids,
				UnitPrice: input.UnitPrice,
				Total:     total,
			},
		}); err != nil {
			return err
		}

		dtos := make([]QuotaDTO, len(rows))
		for i, row := range rows {
			dtos[i] = toDTO(row, now, s.policy)
		}
		result = &PurchaseResult{Quotas: dtos, Total: total, TransactionID: transfer.Debit.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Redeem(ctx context.Context, memberID, quotaID uuid.UUID) (*RedeemResult, error) {
	var result *RedeemResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.lockCollateral(ctx, tx, repo, memberID); err != nil {
			return err
		}

		quota, err := repo.LockByID(ctx, quotaID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "quota not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock quota")
		}
		if quota.MemberID != memberID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "quota not found")
		}
		if !quota.Status.CanTransitionTo(enums.QuotaSold) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "quota is not active").
				WithDetails(map[string]any{"status": quota.Status})
		}

		result = &RedeemResult{TotalPenalty: decimal.Zero, TotalCredited: decimal.Zero}
		return s.redeemOne(ctx, tx, repo, *quota, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RedeemAll(ctx context.Context, memberID uuid.UUID) (*RedeemResult, error) {
	var result *RedeemResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.lockCollateral(ctx, tx, repo, memberID); err != nil {
			return err
		}

		active, err := repo.LockActiveByMember(ctx, memberID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock active quotas")
		}
		if len(active) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no active quotas to redeem")
		}

		result = &RedeemResult{TotalPenalty: decimal.Zero, TotalCredited: decimal.Zero}
		for _, quota := range active {
			if err := s.redeemOne(ctx, tx, repo, quota, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ApplyValuation(ctx context.Context, quotaID uuid.UUID, value decimal.Decimal) (*QuotaDTO, error) {
	if value.IsNegative() || !value.Equal(money.Round(value)) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "valuation must be a non-negative amount with 2 decimals")
	}

	var dto QuotaDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		quota, err := repo.LockByID(ctx, quotaID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "quota not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock quota")
		}
		now := s.now()
		// Sold quotas keep the value they were redeemed at.
		if quota.Status == enums.QuotaActive {
			if err := repo.UpdateValuation(ctx, quotaID, value, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update valuation")
			}
			quota.CurrentValue = value
			quota.ValuedAt = &now
		}
		dto = toDTO(*quota, now, s.policy)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

func (s *service) List(ctx context.Context, memberID uuid.UUID) ([]QuotaDTO, error) {
	rows, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list quotas")
	}
	now := s.now()
	out := make([]QuotaDTO, len(rows))
	for i, row := range rows {
		out[i] = toDTO(row, now, s.policy)
	}
	return out, nil
}

func (s *service) ActiveSummary(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (Summary, error) {
	return summarize(ctx, s.repo.WithTx(tx), memberID)
}

func (s *service) lockCollateral(ctx context.Context, tx *gorm.DB, repo Repository, memberID uuid.UUID) error {
	if err := repo.LockMember(ctx, memberID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock member")
	}
	outstanding, err := s.loans.HasOutstanding(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if outstanding {
		return pkgerrors.New(pkgerrors.CodeLoanOutstanding, "quotas are locked as collateral while a loan is outstanding")
	}
	return nil
}

func (s *service) redeemOne(ctx context.Context, tx *gorm.DB, repo Repository, quota models.Quota, result *RedeemResult) error {
	now := s.now()
	penalty := EarlyRedemptionPenalty(quota, now, s.policy)
	credit := RedemptionCredit(quota, now, s.policy)

	if err := repo.MarkSold(ctx, quota.ID, now); err != nil {
		if errors.Is(err, errNotActive) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "quota is not active")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark quota sold")
	}
	if credit.IsPositive() {
		if _, err := s.ledger.Transfer(ctx, tx, ledger.Transfer{
			From:        ledger.SystemPoolID,
			To:          quota.MemberID,
			Type:        enums.TransactionQuotaSell,
			Amount:      credit,
			Reference:   &ledger.Reference{Type: "quota", ID: quota.ID},
			Description: "quota redemption",
			Metadata:    map[string]any{"penalty": penalty.String()},
		}); err != nil {
			return err
		}
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventQuotaRedeemed,
		AggregateType: enums.AggregateQuota,
		AggregateID:   quota.ID,
		Actor:         &outbox.ActorRef{MemberID: quota.MemberID, Role: string(enums.MemberRoleMember)},
		Data: payloads.QuotaRedeemedEvent{
			MemberID: quota.MemberID,
			QuotaID:  quota.ID,
			Penalty:  penalty,
			Credited: credit,
		},
	}); err != nil {
		return err
	}

	result.Items = append(result.Items, RedeemedQuota{QuotaID: quota.ID, Penalty: penalty, Credited: credit})
	result.TotalPenalty = result.TotalPenalty.Add(penalty)
	result.TotalCredited = result.TotalCredited.Add(credit)
	return nil
}
