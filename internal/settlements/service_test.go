package settlements

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/credit"
	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/internal/testdb"
	"github.com/angelmondragon/cred30-backend/pkg/db"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

type harness struct {
	conn        *gorm.DB
	ledger      ledger.Service
	quotas      quotas.Service
	credit      credit.Service
	settlements Service
	now         time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := testdb.Open(t)
	h := &harness{conn: conn, now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }
	txRunner := db.NewFromConn(conn)
	emitter := testdb.Outbox(conn)

	var err error
	h.ledger, err = ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn), Logger: testdb.Logger(), Now: clock})
	require.NoError(t, err)

	repo := NewRepository(conn)
	opener, err := NewOpener(repo, h.ledger, emitter)
	require.NoError(t, err)

	quotaRepo := quotas.NewRepository(conn)
	h.credit, err = credit.NewService(credit.ServiceParams{
		Repo:       credit.NewRepository(conn),
		Ledger:     h.ledger,
		Collateral: quotas.NewCollateral(quotaRepo),
		Payments:   opener,
		Outbox:     emitter,
		DB:         txRunner,
		Logger:     testdb.Logger(),
		Policy:     credit.DefaultPolicy(),
		Now:        clock,
	})
	require.NoError(t, err)

	h.quotas, err = quotas.NewService(quotas.ServiceParams{
		Repo:   quotaRepo,
		Ledger: h.ledger,
		Outbox: emitter,
		DB:     txRunner,
		Loans:  h.credit,
		Policy: quotas.DefaultPolicy(),
		Now:    clock,
	})
	require.NoError(t, err)

	h.settlements, err = NewService(ServiceParams{
		Repo:     repo,
		Opener:   opener,
		Ledger:   h.ledger,
		Payments: h.credit,
		Outbox:   emitter,
		DB:       txRunner,
		Logger:   testdb.Logger(),
		Now:      clock,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) member(t *testing.T, balance string) uuid.UUID {
	t.Helper()
	member := testdb.SeedMember(t, h.conn, "0", 500)
	if balance != "0" {
		require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
			_, err := h.ledger.Apply(context.Background(), tx, ledger.Entry{
				MemberID:  member.ID,
				Type:      enums.TransactionDeposit,
				Direction: enums.DirectionCredit,
				Amount:    decimal.RequireFromString(balance),
			})
			return err
		}))
	}
	return member.ID
}

// borrower holds one 100.00 quota and an open 50.00 loan over one installment.
func (h *harness) borrower(t *testing.T, balance string) (uuid.UUID, *credit.LoanDTO) {
	t.Helper()
	ctx := context.Background()
	memberID := h.member(t, balance)
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 1, UnitPrice: decimal.NewFromInt(100)})
	require.NoError(t, err)
	loan, err := h.credit.RequestLoan(ctx, credit.RequestInput{MemberID: memberID, Principal: decimal.NewFromInt(50), Installments: 1})
	require.NoError(t, err)
	return memberID, loan
}

func (h *harness) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	return testdb.Reload(t, h.conn, id).Balance
}

func (h *harness) assertReconciled(t *testing.T, id uuid.UUID) {
	t.Helper()
	rec, err := h.ledger.Reconcile(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "member %s drifted: cached %s journal %s", id, rec.CachedBalance, rec.JournalBalance)
}

func (h *harness) transaction(t *testing.T, id uuid.UUID) models.Transaction {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, h.conn.Where("id = ?", id).First(&txn).Error)
	return txn
}

func (h *harness) settlement(t *testing.T, reference string) models.Settlement {
	t.Helper()
	var settlement models.Settlement
	require.NoError(t, h.conn.Where("reference = ?", reference).First(&settlement).Error)
	return settlement
}

func TestDepositSettlesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memberID := h.member(t, "0")

	pending, err := h.settlements.RequestDeposit(ctx, DepositInput{MemberID: memberID, Method: enums.PaymentMethodPix, Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementPending, pending.Status)
	assert.True(t, h.balance(t, memberID).IsZero())
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventPaymentRequested))

	callback := Callback{Reference: pending.Reference, ExternalID: "gw-100", Outcome: enums.GatewayOutcomeSucceeded}
	require.NoError(t, h.settlements.HandleCallback(ctx, callback))
	require.NoError(t, h.settlements.HandleCallback(ctx, callback))

	assert.True(t, h.balance(t, memberID).Equal(decimal.NewFromInt(80)))
	settled, err := h.settlements.Get(ctx, memberID, pending.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementSettled, settled.Status)
	require.NotNil(t, settled.ExternalID)
	assert.Equal(t, "gw-100", *settled.ExternalID)
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventPaymentSettled))
	h.assertReconciled(t, memberID)
}

func TestDepositRejectsBalanceMethod(t *testing.T) {
	h := newHarness(t)
	memberID := h.member(t, "0")

	_, err := h.settlements.RequestDeposit(context.Background(), DepositInput{MemberID: memberID, Method: enums.PaymentMethodBalance, Amount: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestLoanPayoffThroughGateway(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memberID, loan := h.borrower(t, "100")
	before := h.balance(t, memberID)
	poolBefore := h.balance(t, ledger.SystemPoolID)

	result, err := h.credit.PayFull(ctx, credit.PaymentInput{LoanID: loan.ID, MemberID: memberID, Method: enums.PaymentMethodCard})
	require.NoError(t, err)
	require.NotNil(t, result.Settlement)

	require.NoError(t, h.settlements.HandleCallback(ctx, Callback{Reference: result.Settlement.Reference, ExternalID: "gw-200", Outcome: enums.GatewayOutcomeSucceeded}))

	paid, err := h.credit.Get(ctx, memberID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanPaid, paid.Status)
	assert.True(t, h.balance(t, memberID).Equal(before))
	assert.True(t, h.balance(t, ledger.SystemPoolID).Equal(poolBefore.Add(decimal.NewFromInt(60))))

	row := h.settlement(t, result.Settlement.Reference)
	assert.Equal(t, enums.TransactionApproved, h.transaction(t, row.PendingTransactionID).Status)
	h.assertReconciled(t, memberID)
	h.assertReconciled(t, ledger.SystemPoolID)
}

func TestSettlementAfterLoanPaidKeepsFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memberID, loan := h.borrower(t, "200")

	result, err := h.credit.PayInstallment(ctx, credit.PaymentInput{LoanID: loan.ID, MemberID: memberID, Amount: decimal.NewFromInt(60), Method: enums.PaymentMethodPix})
	require.NoError(t, err)
	_, err = h.credit.PayFull(ctx, credit.PaymentInput{LoanID: loan.ID, MemberID: memberID, Method: enums.PaymentMethodBalance})
	require.NoError(t, err)
	afterPayoff := h.balance(t, memberID)

	require.NoError(t, h.settlements.HandleCallback(ctx, Callback{Reference: result.Settlement.Reference, ExternalID: "gw-300", Outcome: enums.GatewayOutcomeSucceeded}))

	assert.True(t, h.balance(t, memberID).Equal(afterPayoff.Add(decimal.NewFromInt(60))))
	row := h.settlement(t, result.Settlement.Reference)
	assert.Equal(t, enums.SettlementSettled, row.Status)
	assert.Equal(t, enums.TransactionRejected, h.transaction(t, row.PendingTransactionID).Status)
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventLoanPaid))
	h.assertReconciled(t, memberID)
}

func TestFailedCallbackRejectsPendingEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memberID, loan := h.borrower(t, "100")
	before := h.balance(t, memberID)

	result, err := h.credit.PayFull(ctx, credit.PaymentInput{LoanID: loan.ID, MemberID: memberID, Method: enums.PaymentMethodPix})
	require.NoError(t, err)

	reference := result.Settlement.Reference
	require.NoError(t, h.settlements.HandleCallback(ctx, Callback{Reference: reference, ExternalID: "gw-400", Outcome: enums.GatewayOutcomeFailed, Reason: "card declined"}))
	require.NoError(t, h.settlements.HandleCallback(ctx, Callback{Reference: reference, ExternalID: "gw-401", Outcome: enums.GatewayOutcomeSucceeded}))

	row := h.settlement(t, reference)
	assert.Equal(t, enums.SettlementFailed, row.Status)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, "card declined", *row.FailureReason)
	assert.Equal(t, enums.TransactionRejected, h.transaction(t, row.PendingTransactionID).Status)

	open, err := h.credit.Get(ctx, memberID, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LoanApproved, open.Status)
	assert.True(t, h.balance(t, memberID).Equal(before))
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventPaymentFailed))
}

func TestReusedExternalIDIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memberID := h.member(t, "0")

	first, err := h.settlements.RequestDeposit(ctx, DepositInput{MemberID: memberID, Method: enums.PaymentMethodPix, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	second, err := h.settlements.RequestDeposit(ctx, DepositInput{MemberID: memberID, Method: enums.PaymentMethodPix, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)

	require.NoError(t, h.settlements.HandleCallback(ctx, Callback{Reference: first.Reference, ExternalID: "gw-500", Outcome: enums.GatewayOutcomeSucceeded}))
	require.NoError(t, h.settlements.HandleCallback(ctx, Callback{Reference: second.Reference, ExternalID: "gw-500", Outcome: enums.GatewayOutcomeSucceeded}))

	assert.True(t, h.balance(t, memberID).Equal(decimal.NewFromInt(10)))
	assert.Equal(t, enums.SettlementPending, h.settlement(t, second.Reference).Status)
}

func TestHandleCallbackValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.settlements.HandleCallback(ctx, Callback{Reference: "stl_x", Outcome: enums.GatewayOutcomeSucceeded})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = h.settlements.HandleCallback(ctx, Callback{Reference: "stl_x", ExternalID: "gw", Outcome: "maybe"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = h.settlements.HandleCallback(ctx, Callback{Reference: "stl_missing", ExternalID: "gw", Outcome: enums.GatewayOutcomeSucceeded})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestExpireStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memberID := h.member(t, "0")

	old, err := h.settlements.RequestDeposit(ctx, DepositInput{MemberID: memberID, Method: enums.PaymentMethodPix, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Settlement{}).
		Where("reference = ?", old.Reference).
		Update("created_at", h.now.Add(-96*time.Hour)).Error)
	fresh, err := h.settlements.RequestDeposit(ctx, DepositInput{MemberID: memberID, Method: enums.PaymentMethodPix, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Settlement{}).
		Where("reference = ?", fresh.Reference).
		Update("created_at", h.now.Add(-time.Hour)).Error)

	expired, err := h.settlements.ExpireStale(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	row := h.settlement(t, old.Reference)
	assert.Equal(t, enums.SettlementFailed, row.Status)
	require.NotNil(t, row.FailureReason)
	assert.Equal(t, expiredReason, *row.FailureReason)
	assert.Equal(t, enums.SettlementPending, h.settlement(t, fresh.Reference).Status)

	expired, err = h.settlements.ExpireStale(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, expired)
}
