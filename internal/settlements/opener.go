package settlements

import (
	"context"
	"fmt"
	"strings"

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

// OpenInput describes an external payment to request from the gateway.
type OpenInput struct {
	MemberID uuid.UUID
	LoanID   *uuid.UUID
	Purpose  enums.SettlementPurpose
	Method   enums.PaymentMethod
	Amount   decimal.Decimal
}

// Opener records pending external payments. It has no dependency on the
// credit engine so the engine can use it to defer gateway payments.
type Opener struct {
	repo   Repository
	ledger ledger.Service
	outbox outbox.Emitter
}

func NewOpener(repo Repository, ledgerSvc ledger.Service, emitter outbox.Emitter) (*Opener, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Opener{repo: repo, ledger: ledgerSvc, outbox: emitter}, nil
}

// Open writes a PENDING journal row and the settlement that will resolve it,
// then asks the gateway integration to charge through the outbox.
func (o *Opener) Open(ctx context.Context, tx *gorm.DB, input OpenInput) (*models.Settlement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "open settlement requires a transaction")
	}
	if !input.Purpose.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid settlement purpose %q", input.Purpose))
	}
	if !input.Method.IsExternal() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("method %q does not settle through the gateway", input.Method))
	}
	if input.Purpose != enums.SettlementPurposeDeposit && input.LoanID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan payments need a loan id")
	}
	if err := money.ValidateAmount(input.Amount); err != nil {
		return nil, err
	}

	id := uuid.New()
	pending, err := o.ledger.OpenPending(ctx, tx, ledger.Entry{
		MemberID:    input.MemberID,
		Type:        input.Purpose.TransactionType(),
		Direction:   input.Purpose.Direction(),
		Amount:      input.Amount,
		Reference:   &ledger.Reference{Type: "settlement", ID: id},
		Description: "awaiting gateway confirmation",
		Metadata:    map[string]any{"method": string(input.Method)},
	})
	if err != nil {
		return nil, err
	}

	settlement := &models.Settlement{
		ID:                   id,
		Reference:            NewReference(id),
		MemberID:             input.MemberID,
		LoanID:               input.LoanID,
		Purpose:              input.Purpose,
		Method:               input.Method,
		Amount:               input.Amount,
		Status:               enums.SettlementPending,
		PendingTransactionID: pending.ID,
	}
	if err := o.repo.WithTx(tx).Create(ctx, settlement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
	}

	if err := o.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRequested,
		AggregateType: enums.AggregateSettlement,
		AggregateID:   settlement.ID,
		Actor:         &outbox.ActorRef{MemberID: input.MemberID, Role: string(enums.MemberRoleMember)},
		Data: payloads.PaymentRequestedEvent{
			SettlementID: settlement.ID,
			Reference:    settlement.Reference,
			MemberID:     settlement.MemberID,
			LoanID:       settlement.LoanID,
			Purpose:      settlement.Purpose,
			Method:       settlement.Method,
			Amount:       settlement.Amount,
		},
	}); err != nil {
		return nil, err
	}
	return settlement, nil
}

// OpenLoanPayment defers a loan payment to the gateway.
func (o *Opener) OpenLoanPayment(ctx context.Context, tx *gorm.DB, memberID, loanID uuid.UUID, purpose enums.SettlementPurpose, method enums.PaymentMethod, amount decimal.Decimal) (*models.Settlement, error) {
	return o.Open(ctx, tx, OpenInput{
		MemberID: memberID,
		LoanID:   &loanID,
		Purpose:  purpose,
		Method:   method,
		Amount:   amount,
	})
}

// NewReference is the id we hand to the gateway.
func NewReference(id uuid.UUID) string {
	return "stl_" + strings.ReplaceAll(id.String(), "-", "")
}
