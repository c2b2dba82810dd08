package credit

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
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/money"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
	"github.com/angelmondragon/cred30-backend/pkg/outbox/payloads"
)

// overdueBatchSize bounds how many loans one sweep flags.
const overdueBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CollateralReader reads a member's active quota holdings.
type CollateralReader interface {
	ActiveSummary(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (quotas.Summary, error)
}

// PendingPayments opens an external payment that settles through the gateway callback.
type PendingPayments interface {
	OpenLoanPayment(ctx context.Context, tx *gorm.DB, memberID, loanID uuid.UUID, purpose enums.SettlementPurpose, method enums.PaymentMethod, amount decimal.Decimal) (*models.Settlement, error)
}

// Service runs the loan lifecycle.
type Service interface {
	AvailableLimit(ctx context.Context, memberID uuid.UUID) (*Limit, error)
	RequestLoan(ctx context.Context, input RequestInput) (*LoanDTO, error)
	OpenLoan(ctx context.Context, tx *gorm.DB, input RequestInput) (*models.Loan, error)
	PayInstallment(ctx context.Context, input PaymentInput) (*PaymentResult, error)
	PayFull(ctx context.Context, input PaymentInput) (*PaymentResult, error)
	ApplyPayment(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, amount decimal.Decimal) (*models.Loan, error)
	HasOutstanding(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (bool, error)
	Get(ctx context.Context, memberID, loanID uuid.UUID) (*LoanDTO, error)
	List(ctx context.Context, memberID uuid.UUID) ([]LoanDTO, error)
	ListOverdue(ctx context.Context, now time.Time) ([]LoanDTO, error)
	FlagOverdue(ctx context.Context, now time.Time) (int, error)
}

// ServiceParams wires the credit service.
type ServiceParams struct {
	Repo       Repository
	Ledger     ledger.Service
	Collateral CollateralReader
	Payments   PendingPayments
	Outbox     outbox.Emitter
	DB         txRunner
	Logger     *logger.Logger
	Policy     Policy
	Now        func() time.Time
}

type service struct {
	repo       Repository
	ledger     ledger.Service
	collateral CollateralReader
	payments   PendingPayments
	outbox     outbox.Emitter
	tx         txRunner
	logg       *logger.Logger
	policy     Policy
	now        func() time.Time
}

// NewService builds a credit service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("loan repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Collateral == nil {
		return nil, fmt.Errorf("collateral reader required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("pending payments required")
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
	if params.Policy.Collateral == nil {
		return nil, fmt.Errorf("collateral policy required")
	}
	if params.Policy.MaxInstallments < 1 {
		return nil, fmt.Errorf("max installments must be positive")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:       params.Repo,
		ledger:     params.Ledger,
		collateral: params.Collateral,
		payments:   params.Payments,
		outbox:     params.Outbox,
		tx:         params.DB,
		logg:       params.Logger,
		policy:     params.Policy,
		now:        now,
	}, nil
}

func (s *service) AvailableLimit(ctx context.Context, memberID uuid.UUID) (*Limit, error) {
	return s.limit(ctx, nil, memberID)
}

func (s *service) RequestLoan(ctx context.Context, input RequestInput) (*LoanDTO, error) {
	var loan *models.Loan
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		loan, err = s.OpenLoan(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toDTO(*loan, s.now()), nil
}

// OpenLoan creates, approves and disburses a loan inside the caller's transaction.
func (s *service) OpenLoan(ctx context.Context, tx *gorm.DB, input RequestInput) (*models.Loan, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "open loan requires a transaction")
	}
	if err := money.ValidateAmount(input.Principal); err != nil {
		return nil, err
	}
	if input.Installments < 1 || input.Installments > s.policy.MaxInstallments {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("installments must be between 1 and %d", s.policy.MaxInstallments))
	}

	repo := s.repo.WithTx(tx)
	member, err := repo.LockMember(ctx, input.MemberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock member")
	}

	outstanding, err := s.HasOutstanding(ctx, tx, member.ID)
	if err != nil {
		return nil, err
	}
	if outstanding {
		return nil, pkgerrors.New(pkgerrors.CodeLoanOutstanding, "an unpaid loan already exists")
	}
	if member.Score < s.policy.MinScore {
		return nil, pkgerrors.New(pkgerrors.CodeIneligible, "credit score below policy threshold").
			WithDetails(map[string]any{"score": member.Score, "required": s.policy.MinScore})
	}

	limit, err := s.limit(ctx, tx, member.ID)
	if err != nil {
		return nil, err
	}
	if input.Principal.GreaterThan(limit.RemainingLimit) {
		return nil, pkgerrors.New(pkgerrors.CodeIneligible, "requested principal exceeds available limit").
			WithDetails(limit)
	}

	terms := Terms(input.Principal, s.policy.InterestRate, input.Installments)
	loan := &models.Loan{
		MemberID:         member.ID,
		Principal:        input.Principal,
		InterestRate:     s.policy.InterestRate,
		Installments:     input.Installments,
		TotalRepayment:   terms.TotalRepayment,
		InstallmentValue: terms.InstallmentValue,
		Status:           enums.LoanPending,
		TotalPaid:        decimal.Zero,
	}
	if err := repo.Create(ctx, loan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
	}

	// Every request within the limit is approved without manual underwriting.
	if !loan.Status.CanTransitionTo(enums.LoanApproved) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "loan cannot be approved")
	}
	now := s.now()
	due := now.Add(time.Duration(input.Installments) * s.policy.InstallmentPeriod)
	loan.Status = enums.LoanApproved
	loan.ApprovedAt = &now
	loan.DueDate = &due
	if err := repo.Save(ctx, loan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve loan")
	}

	if _, err := s.ledger.Transfer(ctx, tx, ledger.Transfer{
		From:        ledger.SystemPoolID,
		To:          member.ID,
		Type:        enums.TransactionLoanReceived,
		Amount:      loan.Principal,
		Reference:   &ledger.Reference{Type: "loan", ID: loan.ID},
		Description: "loan disbursement",
	}); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLoanDisbursed,
		AggregateType: enums.AggregateLoan,
		AggregateID:   loan.ID,
		Actor:         &outbox.ActorRef{MemberID: member.ID, Role: string(enums.MemberRoleMember)},
		Data: payloads.LoanDisbursedEvent{
			LoanID:         loan.ID,
			MemberID:       member.ID,
			Principal:      loan.Principal,
			TotalRepayment: loan.TotalRepayment,
			Installments:   loan.Installments,
			DueDate:        due,
		},
	}); err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) PayInstallment(ctx context.Context, input PaymentInput) (*PaymentResult, error) {
	if err := money.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}
	return s.pay(ctx, input, enums.SettlementPurposeLoanInstallment)
}

func (s *service) PayFull(ctx context.Context, input PaymentInput) (*PaymentResult, error) {
	input.Amount = decimal.Zero
	return s.pay(ctx, input, enums.SettlementPurposeLoanPayoff)
}

func (s *service) pay(ctx context.Context, input PaymentInput, purpose enums.SettlementPurpose) (*PaymentResult, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}

	var result *PaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).LockMember(ctx, input.MemberID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock member")
		}
		loan, err := s.lockOwnedLoan(ctx, tx, input.MemberID, input.LoanID)
		if err != nil {
			return err
		}
		if loan.Status != enums.LoanApproved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "loan is not open for payment").
				WithDetails(map[string]any{"status": loan.Status})
		}

		amount := input.Amount
		if purpose == enums.SettlementPurposeLoanPayoff {
			amount = loan.Remaining()
		}
		if amount.GreaterThan(loan.Remaining()) {
			return pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment exceeds remaining balance").
				WithDetails(map[string]any{"remaining": loan.Remaining().String()})
		}

		if input.Method.IsExternal() {
			settlement, err := s.payments.OpenLoanPayment(ctx, tx, loan.MemberID, loan.ID, purpose, input.Method, amount)
			if err != nil {
				return err
			}
			result = &PaymentResult{Loan: toDTO(*loan, s.now()), Settlement: toPendingSettlement(settlement)}
			return nil
		}

		transfer, err := s.ledger.Transfer(ctx, tx, ledger.Transfer{
			From:        loan.MemberID,
			To:          ledger.SystemPoolID,
			Type:        purpose.TransactionType(),
			Amount:      amount,
			Reference:   &ledger.Reference{Type: "loan", ID: loan.ID},
			Description: "loan repayment",
		})
		if err != nil {
			return err
		}
		updated, err := s.ApplyPayment(ctx, tx, loan.ID, amount)
		if err != nil {
			return err
		}
		txnID := transfer.Debit.ID
		result = &PaymentResult{Loan: toDTO(*updated, s.now()), TransactionID: &txnID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyPayment records money already moved to the pool against the loan.
func (s *service) ApplyPayment(ctx context.Context, tx *gorm.DB, loanID uuid.UUID, amount decimal.Decimal) (*models.Loan, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "apply payment requires a transaction")
	}
	if err := money.ValidateAmount(amount); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	loan, err := repo.LockByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loan")
	}
	if loan.Status != enums.LoanApproved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "loan is not open for payment").
			WithDetails(map[string]any{"status": loan.Status})
	}
	if amount.GreaterThan(loan.Remaining()) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "payment exceeds remaining balance").
			WithDetails(map[string]any{"remaining": loan.Remaining().String()})
	}

	loan.TotalPaid = loan.TotalPaid.Add(amount)
	loan.PaidInstallmentsCount = PaidInstallments(*loan, loan.TotalPaid)
	if loan.TotalPaid.Equal(loan.TotalRepayment) {
		now := s.now()
		loan.Status = enums.LoanPaid
		loan.PaidAt = &now
	}
	if err := repo.Save(ctx, loan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record loan payment")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLoanPaymentRecorded,
		AggregateType: enums.AggregateLoan,
		AggregateID:   loan.ID,
		Data: payloads.LoanPaymentRecordedEvent{
			LoanID:                loan.ID,
			MemberID:              loan.MemberID,
			Amount:                amount,
			TotalPaid:             loan.TotalPaid,
			PaidInstallmentsCount: loan.PaidInstallmentsCount,
			Status:                loan.Status,
		},
	}); err != nil {
		return nil, err
	}
	if loan.Status == enums.LoanPaid {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanPaid,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Data: payloads.LoanPaymentRecordedEvent{
				LoanID:                loan.ID,
				MemberID:              loan.MemberID,
				Amount:                amount,
				TotalPaid:             loan.TotalPaid,
				PaidInstallmentsCount: loan.PaidInstallmentsCount,
				Status:                loan.Status,
			},
		}); err != nil {
			return nil, err
		}
	}
	return loan, nil
}

func (s *service) HasOutstanding(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (bool, error) {
	count, err := s.repo.WithTx(tx).CountOutstanding(ctx, memberID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count outstanding loans")
	}
	return count > 0, nil
}

func (s *service) Get(ctx context.Context, memberID, loanID uuid.UUID) (*LoanDTO, error) {
	loan, err := s.repo.FindByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loan")
	}
	if loan.MemberID != memberID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
	}
	return toDTO(*loan, s.now()), nil
}

func (s *service) List(ctx context.Context, memberID uuid.UUID) ([]LoanDTO, error) {
	rows, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}
	return toDTOs(rows, s.now()), nil
}

func (s *service) ListOverdue(ctx context.Context, now time.Time) ([]LoanDTO, error) {
	rows, err := s.repo.ListOverdue(ctx, now, overdueBatchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue loans")
	}
	overdue := make([]models.Loan, 0, len(rows))
	for _, row := range rows {
		if IsOverdue(row, now) {
			overdue = append(overdue, row)
		}
	}
	return toDTOs(overdue, now), nil
}

// FlagOverdue emits loan_overdue once per loan. Per-loan failures are collected
// so one bad row does not stop the sweep.
func (s *service) FlagOverdue(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.repo.ListUnflaggedOverdue(ctx, now, overdueBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue loans")
	}

	flagged := 0
	var errs error
	for _, row := range rows {
		if !IsOverdue(row, now) {
			continue
		}
		loan := row
		marked := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			marked, err = s.repo.WithTx(tx).MarkOverdueNotified(ctx, loan.ID, now)
			if err != nil || !marked {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLoanOverdue,
				AggregateType: enums.AggregateLoan,
				AggregateID:   loan.ID,
				Data: payloads.LoanOverdueEvent{
					LoanID:    loan.ID,
					MemberID:  loan.MemberID,
					DueDate:   *loan.DueDate,
					Remaining: loan.Remaining(),
				},
			})
		})
		if err == nil && marked {
			flagged++
		}
		if err != nil {
			logCtx := s.logg.WithField(ctx, "loan_id", loan.ID.String())
			s.logg.Error(logCtx, "flag overdue loan failed", err)
			errs = multierr.Append(errs, err)
		}
	}
	return flagged, errs
}

func (s *service) limit(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (*Limit, error) {
	summary, err := s.collateral.ActiveSummary(ctx, tx, memberID)
	if err != nil {
		return nil, err
	}
	loans, err := s.repo.WithTx(tx).ListApprovedByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approved loans")
	}

	debt := decimal.Zero
	for _, loan := range loans {
		debt = debt.Add(loan.Remaining())
	}
	total := decimal.Zero
	if summary.Count > 0 {
		total = s.policy.Collateral.TotalLimit(summary.Value)
	}
	return &Limit{
		TotalLimit:     total,
		ActiveDebt:     debt,
		RemainingLimit: money.Max(total.Sub(debt), decimal.Zero),
		ActiveQuotas:   summary.Count,
	}, nil
}

func (s *service) lockOwnedLoan(ctx context.Context, tx *gorm.DB, memberID, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.repo.WithTx(tx).LockByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock loan")
	}
	if loan.MemberID != memberID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
	}
	return loan, nil
}

func toDTOs(rows []models.Loan, now time.Time) []LoanDTO {
	out := make([]LoanDTO, len(rows))
	for i, row := range rows {
		out[i] = *toDTO(row, now)
	}
	return out
}
