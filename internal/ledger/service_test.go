package ledger

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/testdb"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc, conn
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	require.Error(t, err)
}

func TestSystemPoolIDMatchesSeed(t *testing.T) {
	assert.Equal(t, testdb.SystemPoolID, SystemPoolID)
}

func TestApplyCreditAndDebit(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	var credit, debit *models.Transaction
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		credit, err = svc.Apply(ctx, tx, Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    amount("100.00"),
		})
		if err != nil {
			return err
		}
		debit, err = svc.Apply(ctx, tx, Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionWithdrawal,
			Direction: enums.DirectionDebit,
			Amount:    amount("40.50"),
		})
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, enums.TransactionApproved, credit.Status)
	assert.True(t, credit.BalanceBefore.Equal(decimal.Zero))
	assert.True(t, credit.BalanceAfter.Equal(amount("100")))
	assert.True(t, debit.BalanceBefore.Equal(amount("100")))
	assert.True(t, debit.BalanceAfter.Equal(amount("59.50")))

	balance, err := svc.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("59.50")), "got %s", balance)

	reloaded := testdb.Reload(t, conn, member.ID)
	assert.Equal(t, int64(2), reloaded.Version)
}

func TestApplyRejectsOverdraftWithoutWriting(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "10.00", 0)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Apply(ctx, tx, Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionWithdrawal,
			Direction: enums.DirectionDebit,
			Amount:    amount("10.01"),
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	var count int64
	require.NoError(t, conn.Model(&models.Transaction{}).Where("member_id = ?", member.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.Equal(amount("10")))
}

func TestApplyValidatesAmount(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	for _, raw := range []string{"0", "-5", "1.005"} {
		err := conn.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Apply(ctx, tx, Entry{
				MemberID:  member.ID,
				Type:      enums.TransactionDeposit,
				Direction: enums.DirectionCredit,
				Amount:    amount(raw),
			})
			return err
		})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount), "amount %s: %v", raw, err)
	}
}

func TestApplyRequiresTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Apply(context.Background(), nil, Entry{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestApplyUnknownMember(t *testing.T) {
	svc, conn := newTestService(t)
	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Apply(context.Background(), tx, Entry{
			MemberID:  uuid.New(),
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    amount("1"),
		})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSystemPoolMayGoNegative(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Transfer(ctx, tx, Transfer{
			From:   SystemPoolID,
			To:     member.ID,
			Type:   enums.TransactionLoanReceived,
			Amount: amount("250.00"),
		})
		return err
	})
	require.NoError(t, err)

	pool, err := svc.Balance(ctx, SystemPoolID)
	require.NoError(t, err)
	assert.True(t, pool.Equal(amount("-250")))
	balance, err := svc.Balance(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("250")))
}

func TestTransferRollsBackBothLegsOnFailure(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "5.00", 0)

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Transfer(ctx, tx, Transfer{
			From:   member.ID,
			To:     SystemPoolID,
			Type:   enums.TransactionQuotaPurchase,
			Amount: amount("50.00"),
		})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))

	pool := testdb.Reload(t, conn, SystemPoolID)
	assert.True(t, pool.Balance.IsZero())
}

func TestTransferRejectsSameAccount(t *testing.T) {
	svc, conn := newTestService(t)
	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Transfer(context.Background(), tx, Transfer{
			From:   SystemPoolID,
			To:     SystemPoolID,
			Type:   enums.TransactionDividend,
			Amount: amount("1"),
		})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPendingApproveAndReject(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	var first, second *models.Transaction
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = svc.OpenPending(ctx, tx, Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    amount("30.00"),
			Reference: &Reference{Type: "settlement", ID: uuid.New()},
		})
		if err != nil {
			return err
		}
		second, err = svc.OpenPending(ctx, tx, Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    amount("12.00"),
		})
		return err
	}))
	assert.Equal(t, enums.TransactionPending, first.Status)
	assert.Nil(t, first.BalanceAfter)
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.IsZero())

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		approved, err := svc.Approve(ctx, tx, first.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, enums.TransactionApproved, approved.Status)
		assert.True(t, approved.BalanceAfter.Equal(amount("30")))

		rejected, err := svc.Reject(ctx, tx, second.ID, "gateway declined")
		if err != nil {
			return err
		}
		assert.Equal(t, enums.TransactionRejected, rejected.Status)
		return nil
	}))
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.Equal(amount("30")))

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Approve(ctx, tx, second.ID)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	err = conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Reject(ctx, tx, first.ID, "late")
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestApprovePendingDebitChecksFunds(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	var pending *models.Transaction
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		pending, err = svc.OpenPending(ctx, tx, Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionLoanInstallment,
			Direction: enums.DirectionDebit,
			Amount:    amount("20.00"),
		})
		return err
	}))

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Approve(ctx, tx, pending.ID)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
}

func TestHistoryPaginatesNewestFirst(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		row := models.Transaction{
			MemberID:  member.ID,
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    amount("1.00"),
			Status:    enums.TransactionApproved,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, conn.Create(&row).Error)
	}

	page, err := svc.History(ctx, member.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.History(ctx, member.ID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.NextCursor)
	assert.True(t, next.Items[0].CreatedAt.Equal(base))
}

func TestReconcileMatchesJournal(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Apply(ctx, tx, Entry{
			MemberID: member.ID, Type: enums.TransactionDeposit,
			Direction: enums.DirectionCredit, Amount: amount("80.00"),
		}); err != nil {
			return err
		}
		if _, err := svc.Transfer(ctx, tx, Transfer{
			From: member.ID, To: SystemPoolID,
			Type: enums.TransactionQuotaPurchase, Amount: amount("50.00"),
		}); err != nil {
			return err
		}
		_, err := svc.OpenPending(ctx, tx, Entry{
			MemberID: member.ID, Type: enums.TransactionDeposit,
			Direction: enums.DirectionCredit, Amount: amount("999.00"),
		})
		return err
	}))

	result, err := svc.Reconcile(ctx, member.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, 2, result.ApprovedCount)
	assert.True(t, result.JournalBalance.Equal(amount("30")))

	mismatches, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestReconcileFlagsDrift(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "15.00", 0)

	result, err := svc.Reconcile(ctx, member.ID)
	require.NoError(t, err)
	assert.False(t, result.Consistent)

	mismatches, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, member.ID, mismatches[0].MemberID)
}

func TestPoolLegsSkipVersionAndChainBalances(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	alice := testdb.SeedMember(t, conn, "100.00", 0)
	bob := testdb.SeedMember(t, conn, "100.00", 0)

	var legs []*TransferResult
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		for _, transfer := range []Transfer{
			{From: alice.ID, To: SystemPoolID, Type: enums.TransactionQuotaPurchase, Amount: amount("30.00")},
			{From: bob.ID, To: SystemPoolID, Type: enums.TransactionQuotaPurchase, Amount: amount("20.00")},
			{From: SystemPoolID, To: alice.ID, Type: enums.TransactionDividend, Amount: amount("5.00")},
		} {
			result, err := svc.Transfer(ctx, tx, transfer)
			if err != nil {
				return err
			}
			legs = append(legs, result)
		}
		return nil
	}))

	require.Len(t, legs, 3)
	assert.True(t, legs[0].Credit.BalanceBefore.IsZero())
	assert.True(t, legs[0].Credit.BalanceAfter.Equal(amount("30")))
	assert.True(t, legs[1].Credit.BalanceBefore.Equal(amount("30")))
	assert.True(t, legs[1].Credit.BalanceAfter.Equal(amount("50")))
	assert.True(t, legs[2].Debit.BalanceBefore.Equal(amount("50")))
	assert.True(t, legs[2].Debit.BalanceAfter.Equal(amount("45")))

	pool := testdb.Reload(t, conn, SystemPoolID)
	assert.True(t, pool.Balance.Equal(amount("45")))
	assert.Equal(t, int64(0), pool.Version)
	assert.Equal(t, int64(2), testdb.Reload(t, conn, alice.ID).Version)

	mismatches, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestUpdateBalanceRejectsStaleVersion(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "10.00", 0)
	stale := *member

	require.NoError(t, repo.UpdateBalance(ctx, member, amount("25.00")))
	assert.Equal(t, int64(1), member.Version)

	err := repo.UpdateBalance(ctx, &stale, amount("99.00"))
	assert.ErrorIs(t, err, errStaleMember)
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.Equal(amount("25")))
}

func TestAdjustSystemBalanceOnlyTouchesSystemAccounts(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "10.00", 0)

	_, err := repo.AdjustSystemBalance(ctx, member.ID, amount("5"))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.Equal(amount("10")))

	after, err := repo.AdjustSystemBalance(ctx, SystemPoolID, amount("-7.50"))
	require.NoError(t, err)
	assert.True(t, after.Equal(amount("-7.5")))
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	conn := testdb.OpenFile(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(conn), Logger: testdb.Logger()})
	require.NoError(t, err)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "100.00", 0)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- conn.Transaction(func(tx *gorm.DB) error {
				_, err := svc.Transfer(ctx, tx, Transfer{
					From: member.ID, To: SystemPoolID,
					Type: enums.TransactionQuotaPurchase, Amount: amount("20.00"),
				})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds), "unexpected error: %v", err)
	}
	assert.Equal(t, 5, succeeded)
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.IsZero())
	assert.True(t, testdb.Reload(t, conn, SystemPoolID).Balance.Equal(amount("100")))

	mismatches, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}
