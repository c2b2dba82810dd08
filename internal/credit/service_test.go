package credit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/internal/testdb"
	"github.com/angelmondragon/cred30-backend/pkg/db"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

type fakePayments struct {
	calls []decimal.Decimal
}

func (f *fakePayments) OpenLoanPayment(ctx context.Context, tx *gorm.DB, memberID, loanID uuid.UUID, purpose enums.SettlementPurpose, method enums.PaymentMethod, amount decimal.Decimal) (*models.Settlement, error) {
	f.calls = append(f.calls, amount)
	return &models.Settlement{
		ID:        uuid.New(),
		Reference: "stl_test",
		MemberID:  memberID,
		LoanID:    &loanID,
		Purpose:   purpose,
		Method:    method,
		Amount:    amount,
		Status:    enums.SettlementPending,
	}, nil
}

type harness struct {
	conn     *gorm.DB
	ledger   ledger.Service
	quotas   quotas.Service
	credit   Service
	payments *fakePayments
	now      time.Time
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	conn := testdb.Open(t)
	h := &harness{conn: conn, payments: &fakePayments{}, now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	var err error
	h.ledger, err = ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn), Logger: testdb.Logger(), Now: clock})
	require.NoError(t, err)

	txRunner := db.NewFromConn(conn)
	quotaRepo := quotas.NewRepository(conn)
	h.credit, err = NewService(ServiceParams{
		Repo:       NewRepository(conn),
		Ledger:     h.ledger,
		Collateral: quotas.NewCollateral(quotaRepo),
		Payments:   h.payments,
		Outbox:     testdb.Outbox(conn),
		DB:         txRunner,
		Logger:     testdb.Logger(),
		Policy:     policy,
		Now:        clock,
	})
	require.NoError(t, err)

	h.quotas, err = quotas.NewService(quotas.ServiceParams{
		Repo:   quotaRepo,
		Ledger: h.ledger,
		Outbox: testdb.Outbox(conn),
		DB:     txRunner,
		Loans:  h.credit,
		Policy: quotas.DefaultPolicy(),
		Now:    clock,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) member(t *testing.T, balance string, score int) uuid.UUID {
	t.Helper()
	member := testdb.SeedMember(t, h.conn, "0", score)
	if balance != "0" {
		require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
			_, err := h.ledger.Apply(context.Background(), tx, ledger.Entry{
				MemberID:  member.ID,
				Type:      enums.TransactionDeposit,
				Direction: enums.DirectionCredit,
				Amount:    dec(balance),
			})
			return err
		}))
	}
	return member.ID
}

func (h *harness) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	return testdb.Reload(t, h.conn, id).Balance
}

func TestLoanLifecycleScenario(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	memberID := h.member(t, "1000", 0)

	purchase, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 1, UnitPrice: dec("500")})
	require.NoError(t, err)
	assert.True(t, h.balance(t, memberID).Equal(dec("500")))

	loan, err := h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("300"), Installments: 3})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanApproved, loan.Status)
	assert.True(t, loan.TotalRepayment.Equal(dec("360")))
	assert.True(t, loan.InstallmentValue.Equal(dec("120")))
	require.NotNil(t, loan.DueDate)
	assert.True(t, loan.DueDate.Equal(h.now.Add(90*24*time.Hour)))
	assert.True(t, h.balance(t, memberID).Equal(dec("800")))

	paid, err := h.credit.PayInstallment(ctx, PaymentInput{LoanID: loan.ID, MemberID: memberID, Amount: dec("120"), Method: enums.PaymentMethodBalance})
	require.NoError(t, err)
	require.NotNil(t, paid.TransactionID)
	assert.Equal(t, 1, paid.Loan.PaidInstallmentsCount)
	assert.True(t, h.balance(t, memberID).Equal(dec("680")))

	_, err = h.quotas.Redeem(ctx, memberID, purchase.Quotas[0].ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLoanOutstanding))

	reconciliation, err := h.ledger.Reconcile(ctx, memberID)
	require.NoError(t, err)
	assert.True(t, reconciliation.Consistent)
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventLoanDisbursed))
}

func TestAvailableLimitRequiresActiveQuotas(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	memberID := h.member(t, "1000", 900)

	limit, err := h.credit.AvailableLimit(ctx, memberID)
	require.NoError(t, err)
	assert.True(t, limit.TotalLimit.IsZero())
	assert.True(t, limit.RemainingLimit.IsZero())

	_, err = h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("1"), Installments: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIneligible))
}

func TestRequestLoanRejections(t *testing.T) {
	policy := DefaultPolicy()
	policy.MinScore = 300
	h := newHarness(t, policy)
	ctx := context.Background()

	lowScore := h.member(t, "100", 100)
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: lowScore, Quantity: 1, UnitPrice: dec("100")})
	require.NoError(t, err)
	_, err = h.credit.RequestLoan(ctx, RequestInput{MemberID: lowScore, Principal: dec("10"), Installments: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIneligible))

	memberID := h.member(t, "200", 500)
	_, err = h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 2, UnitPrice: dec("100")})
	require.NoError(t, err)

	_, err = h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("200.01"), Installments: 2})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIneligible))

	_, err = h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("50"), Installments: 13})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("50"), Installments: 2})
	require.NoError(t, err)
	_, err = h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("50"), Installments: 2})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLoanOutstanding))

	limit, err := h.credit.AvailableLimit(ctx, memberID)
	require.NoError(t, err)
	assert.True(t, limit.TotalLimit.Equal(dec("200")))
	assert.True(t, limit.ActiveDebt.Equal(dec("60")))
	assert.True(t, limit.RemainingLimit.Equal(dec("140")))
}

func TestPaymentsReachPaidExactlyOnce(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	memberID := h.member(t, "500", 0)
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 1, UnitPrice: dec("100")})
	require.NoError(t, err)

	loan, err := h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("100"), Installments: 3})
	require.NoError(t, err)

	for _, part := range []string{"50", "0.01", "39.99"} {
		res, err := h.credit.PayInstallment(ctx, PaymentInput{LoanID: loan.ID, MemberID: memberID, Amount: dec(part), Method: enums.PaymentMethodBalance})
		require.NoError(t, err)
		assert.Equal(t, enums.LoanApproved, res.Loan.Status)
	}

	_, err = h.credit.PayInstallment(ctx, PaymentInput{LoanID: loan.ID, MemberID: memberID, Amount: dec("30.01"), Method: enums.PaymentMethodBalance})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))

	res, err := h.credit.PayFull(ctx, PaymentInput{LoanID: loan.ID, MemberID: memberID, Method: enums.PaymentMethodBalance})
	require.NoError(t, err)
	assert.Equal(t, enums.LoanPaid, res.Loan.Status)
	assert.Equal(t, 3, res.Loan.PaidInstallmentsCount)
	assert.True(t, res.Loan.Remaining.IsZero())

	_, err = h.credit.PayFull(ctx, PaymentInput{LoanID: loan.ID, MemberID: memberID, Method: enums.PaymentMethodBalance})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventLoanPaid))

	outstanding, err := h.credit.HasOutstanding(ctx, nil, memberID)
	require.NoError(t, err)
	assert.False(t, outstanding)
}

func TestExternalPaymentOpensSettlementWithoutTouchingLoan(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	memberID := h.member(t, "100", 0)
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 1, UnitPrice: dec("100")})
	require.NoError(t, err)
	loan, err := h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("50"), Installments: 1})
	require.NoError(t, err)

	res, err := h.credit.PayFull(ctx, PaymentInput{LoanID: loan.ID, MemberID: memberID, Method: enums.PaymentMethodPix})
	require.NoError(t, err)
	require.NotNil(t, res.Settlement)
	assert.Nil(t, res.TransactionID)
	assert.True(t, res.Settlement.Amount.Equal(dec("60")))
	require.Len(t, h.payments.calls, 1)

	current, err := h.credit.Get(ctx, memberID, loan.ID)
	require.NoError(t, err)
	assert.True(t, current.TotalPaid.IsZero())
	assert.True(t, h.balance(t, memberID).Equal(dec("50")))
}

func TestPaymentByOtherMemberIsNotFound(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	owner := h.member(t, "100", 0)
	other := h.member(t, "100", 0)
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: owner, Quantity: 1, UnitPrice: dec("100")})
	require.NoError(t, err)
	loan, err := h.credit.RequestLoan(ctx, RequestInput{MemberID: owner, Principal: dec("10"), Installments: 1})
	require.NoError(t, err)

	_, err = h.credit.PayInstallment(ctx, PaymentInput{LoanID: loan.ID, MemberID: other, Amount: dec("1"), Method: enums.PaymentMethodBalance})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListOverdueDerivesFlagAtRequestedTime(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	memberID := h.member(t, "100", 0)
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 1, UnitPrice: dec("100")})
	require.NoError(t, err)
	_, err = h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("40"), Installments: 1})
	require.NoError(t, err)

	none, err := h.credit.ListOverdue(ctx, h.now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	overdue, err := h.credit.ListOverdue(ctx, h.now.Add(31*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.True(t, overdue[0].Overdue)

	// the member's own view is still evaluated at the service clock
	mine, err := h.credit.List(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.False(t, mine[0].Overdue)
}

func TestFlagOverdueEmitsOnce(t *testing.T) {
	h := newHarness(t, DefaultPolicy())
	ctx := context.Background()
	memberID := h.member(t, "100", 0)
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 1, UnitPrice: dec("100")})
	require.NoError(t, err)
	loan, err := h.credit.RequestLoan(ctx, RequestInput{MemberID: memberID, Principal: dec("40"), Installments: 1})
	require.NoError(t, err)

	later := h.now.Add(31 * 24 * time.Hour)
	overdue, err := h.credit.ListOverdue(ctx, later)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, loan.ID, overdue[0].ID)
	assert.True(t, overdue[0].Overdue)

	flagged, err := h.credit.FlagOverdue(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	flagged, err = h.credit.FlagOverdue(ctx, later.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, flagged)
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventLoanOverdue))
}
