package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/credit"
	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	"github.com/angelmondragon/cred30-backend/internal/testdb"
	"github.com/angelmondragon/cred30-backend/pkg/config"
	"github.com/angelmondragon/cred30-backend/pkg/db"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

func defaultPolicyConfig() config.PolicyConfig {
	return config.PolicyConfig{
		LoanInterestRate:       decimal.RequireFromString("0.20"),
		LoanMaxInstallments:    12,
		LoanInstallmentPeriod:  30 * 24 * time.Hour,
		CollateralRatio:        decimal.NewFromInt(1),
		EarlyRedemptionPenalty: decimal.RequireFromString("0.40"),
		EarlyRedemptionWindow:  365 * 24 * time.Hour,
		EscrowFeeRate:          decimal.RequireFromString("0.05"),
		BoostFee:               decimal.RequireFromString("5.00"),
		BoostDuration:          7 * 24 * time.Hour,
		VoteMinQuotas:          5,
		VoteMinScore:           500,
	}
}

func TestPoliciesFromConfigMatchesDefaults(t *testing.T) {
	policies := PoliciesFromConfig(defaultPolicyConfig())

	wantQuotas := quotas.DefaultPolicy()
	assert.True(t, wantQuotas.PenaltyRate.Equal(policies.Quotas.PenaltyRate))
	assert.Equal(t, wantQuotas.Window, policies.Quotas.Window)

	wantCredit := credit.DefaultPolicy()
	assert.True(t, wantCredit.InterestRate.Equal(policies.Credit.InterestRate))
	assert.Equal(t, wantCredit.MaxInstallments, policies.Credit.MaxInstallments)
	assert.True(t, policies.Credit.Collateral.TotalLimit(decimal.NewFromInt(300)).Equal(decimal.NewFromInt(300)))

	assert.EqualValues(t, 5, policies.Governance.MinActiveQuotas)
	assert.True(t, policies.Marketplace.BoostFee.Equal(decimal.RequireFromString("5.00")))
}

func TestBuildRequiresDatabase(t *testing.T) {
	_, err := Build(Params{Logger: testdb.Logger()})
	require.Error(t, err)
}

func TestBuildWiresAConsistentLoanCycle(t *testing.T) {
	conn := testdb.Open(t)
	services, err := Build(Params{
		DB:       conn,
		Tx:       db.NewFromConn(conn),
		Logger:   testdb.Logger(),
		Policies: PoliciesFromConfig(defaultPolicyConfig()),
	})
	require.NoError(t, err)

	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 600)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		_, err := services.Ledger.Apply(ctx, tx, ledger.Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    decimal.NewFromInt(1000),
		})
		return err
	}))

	_, err = services.Quotas.Purchase(ctx, quotas.PurchaseInput{
		MemberID:  member.ID,
		Quantity:  10,
		UnitPrice: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	limit, err := services.Credit.AvailableLimit(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, limit.RemainingLimit.Equal(decimal.NewFromInt(500)), limit.RemainingLimit.String())

	loan, err := services.Credit.RequestLoan(ctx, credit.RequestInput{
		MemberID:     member.ID,
		Principal:    decimal.NewFromInt(200),
		Installments: 2,
	})
	require.NoError(t, err)

	// collateral is locked while the loan is open
	_, err = services.Quotas.RedeemAll(ctx, member.ID)
	require.Error(t, err)

	paid, err := services.Credit.PayFull(ctx, credit.PaymentInput{
		LoanID:   loan.ID,
		MemberID: member.ID,
		Method:   enums.PaymentMethodBalance,
	})
	require.NoError(t, err)
	assert.Nil(t, paid.Settlement)
	assert.Equal(t, enums.LoanPaid, paid.Loan.Status)

	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.Equal(decimal.NewFromInt(460)))

	mismatches, err := services.Ledger.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}
