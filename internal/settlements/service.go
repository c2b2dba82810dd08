package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
	"github.com/angelmondragon/cred30-backend/pkg/outbox/payloads"
)

const (
	expiredReason   = "expired"
	expiryBatchSize = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PaymentApplier records a confirmed payment against a loan.
type PaymentApplier interface {
	ApplyPayment(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, amount decimal.Decimal) (*models.Loan, error)
}

// Service resolves gateway settlements into ledger effects.
type Service interface {
	RequestDeposit(ctx context.Context, input DepositInput) (*SettlementDTO, error)
	Get(ctx context.Context, memberID uuid.UUID, reference string) (*SettlementDTO, error)
	List(ctx context.Context, memberID uuid.UUID) ([]SettlementDTO, error)
	HandleCallback(ctx context.Context, callback Callback) error
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type ServiceParams struct {
	Repo     Repository
	Opener   *Opener
	Ledger   ledger.Service
	Payments PaymentApplier
	Outbox   outbox.Emitter
	DB       txRunner
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	opener   *Opener
	ledger   ledger.Service
	payments PaymentApplier
	outbox   outbox.Emitter
	tx       txRunner
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if params.Opener == nil {
		return nil, fmt.Errorf("settlement opener required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment applier required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		opener:   params.Opener,
		ledger:   params.Ledger,
		payments: params.Payments,
		outbox:   params.Outbox,
		tx:       params.DB,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) RequestDeposit(ctx context.Context, input DepositInput) (*SettlementDTO, error) {
	var settlement *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		settlement, err = s.opener.Open(ctx, tx, OpenInput{
			MemberID: input.MemberID,
			Purpose:  enums.SettlementPurposeDeposit,
			Method:   input.Method,
			Amount:   input.Amount,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return toDTO(*settlement), nil
}

func (s *service) Get(ctx context.Context, memberID uuid.UUID, reference string) (*SettlementDTO, error) {
	settlement, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, mapSettlementErr(err)
	}
	if settlement.MemberID != memberID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
	}
	return toDTO(*settlement), nil
}

func (s *service) List(ctx context.Context, memberID uuid.UUID) ([]SettlementDTO, error) {
	rows, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	out := make([]SettlementDTO, len(rows))
	for i, row := range rows {
		out[i] = *toDTO(row)
	}
	return out, nil
}

// HandleCallback applies a gateway report at most once. Replays of a resolved
// settlement and reused external ids are logged and acknowledged.
func (s *service) HandleCallback(ctx context.Context, callback Callback) error {
	if callback.Reference == "" || callback.ExternalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference and external id are required")
	}
	if callback.Outcome != enums.GatewayOutcomeSucceeded && callback.Outcome != enums.GatewayOutcomeFailed {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid gateway outcome %q", callback.Outcome))
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"settlement_reference": callback.Reference,
		"external_id":          callback.ExternalID,
	})

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		settlement, err := repo.LockByReference(ctx, callback.Reference)
		if err != nil {
			return mapSettlementErr(err)
		}
		if settlement.Status.IsTerminal() {
			s.logg.Warn(ctx, "duplicate settlement callback ignored")
			return nil
		}
		known, err := repo.ExternalIDExists(ctx, callback.ExternalID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check external id")
		}
		if known {
			s.logg.Warn(ctx, "external id already settled another payment; callback ignored")
			return nil
		}

		externalID := callback.ExternalID
		settlement.ExternalID = &externalID
		if callback.Outcome == enums.GatewayOutcomeFailed {
			reason := callback.Reason
			if reason == "" {
				reason = "gateway reported failure"
			}
			return s.fail(ctx, tx, settlement, reason)
		}
		return s.settle(ctx, tx, settlement)
	})
}

func (s *service) settle(ctx context.Context, tx *gorm.DB, settlement *models.Settlement) error {
	applied := true
	if settlement.Purpose == enums.SettlementPurposeDeposit {
		if _, err := s.ledger.Approve(ctx, tx, settlement.PendingTransactionID); err != nil {
			return err
		}
	} else {
		var err error
		applied, err = s.settleLoanPayment(ctx, tx, settlement)
		if err != nil {
			return err
		}
	}

	now := s.now()
	settlement.Status = enums.SettlementSettled
	settlement.SettledAt = &now
	if err := s.resolve(ctx, tx, settlement); err != nil {
		return err
	}
	return s.emitStatus(ctx, tx, enums.EventPaymentSettled, settlement, applied, "")
}

// settleLoanPayment credits the arriving money to the member first so it is
// never lost, then moves it to the pool against the loan. A loan that was
// paid off in the meantime leaves the money on the member balance.
func (s *service) settleLoanPayment(ctx context.Context, tx *gorm.DB, settlement *models.Settlement) (bool, error) {
	if settlement.LoanID == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "loan settlement without loan id")
	}
	reference := &ledger.Reference{Type: "settlement", ID: settlement.ID}
	if _, err := s.ledger.Apply(ctx, tx, ledger.Entry{
		MemberID:    settlement.MemberID,
		Type:        enums.TransactionDeposit,
		Direction:   enums.DirectionCredit,
		Amount:      settlement.Amount,
		Reference:   reference,
		Description: "gateway payment received",
		Metadata:    map[string]any{"method": string(settlement.Method)},
	}); err != nil {
		return false, err
	}

	if _, err := s.payments.ApplyPayment(ctx, tx, *settlement.LoanID, settlement.Amount); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) || pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount) {
			s.logg.Warn(s.logg.WithField(ctx, "loan_id", settlement.LoanID.String()), "loan no longer accepts this payment; funds kept on balance")
			if _, rejectErr := s.ledger.Reject(ctx, tx, settlement.PendingTransactionID, "loan no longer open for this payment"); rejectErr != nil {
				return false, rejectErr
			}
			return false, nil
		}
		return false, err
	}

	if _, err := s.ledger.Approve(ctx, tx, settlement.PendingTransactionID); err != nil {
		return false, err
	}
	if _, err := s.ledger.Apply(ctx, tx, ledger.Entry{
		MemberID:    ledger.SystemPoolID,
		Type:        settlement.Purpose.TransactionType(),
		Direction:   enums.DirectionCredit,
		Amount:      settlement.Amount,
		Reference:   reference,
		Description: "loan repayment",
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) fail(ctx context.Context, tx *gorm.DB, settlement *models.Settlement, reason string) error {
	if _, err := s.ledger.Reject(ctx, tx, settlement.PendingTransactionID, reason); err != nil {
		return err
	}
	settlement.Status = enums.SettlementFailed
	settlement.FailureReason = &reason
	if err := s.resolve(ctx, tx, settlement); err != nil {
		return err
	}
	return s.emitStatus(ctx, tx, enums.EventPaymentFailed, settlement, false, reason)
}

func (s *service) resolve(ctx context.Context, tx *gorm.DB, settlement *models.Settlement) error {
	if err := s.repo.WithTx(tx).Resolve(ctx, settlement); err != nil {
		if errors.Is(err, errNotPending) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement already resolved")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve settlement")
	}
	return nil
}

// ExpireStale fails settlements the gateway never reported on. Each settlement
// is expired in its own transaction.
func (s *service) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	rows, err := s.repo.ListStalePending(ctx, s.now().Add(-olderThan), expiryBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale settlements")
	}

	expired := 0
	var errs error
	for _, row := range rows {
		reference := row.Reference
		done := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			settlement, err := s.repo.WithTx(tx).LockByReference(ctx, reference)
			if err != nil {
				return mapSettlementErr(err)
			}
			if settlement.Status != enums.SettlementPending {
				return nil
			}
			if err := s.fail(ctx, tx, settlement, expiredReason); err != nil {
				return err
			}
			done = true
			return nil
		})
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "settlement_reference", reference), "expire settlement failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if done {
			expired++
		}
	}
	return expired, errs
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, settlement *models.Settlement, applied bool, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlement.ID,
		Data: payloads.PaymentStatusEvent{
			SettlementID: settlement.ID,
			Reference:    settlement.Reference,
			ExternalID:   settlement.ExternalID,
			MemberID:     settlement.MemberID,
			Status:       settlement.Status,
			Amount:       settlement.Amount,
			Applied:      applied,
			Reason:       reason,
		},
	})
}

func mapSettlementErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
}
