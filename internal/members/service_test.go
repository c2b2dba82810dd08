package members

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
	"github.com/angelmondragon/cred30-backend/internal/testdb"
	"github.com/angelmondragon/cred30-backend/pkg/db"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:   ledger.NewRepository(conn),
		Logger: testdb.Logger(),
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Ledger: ledgerSvc,
		Outbox: testdb.Outbox(conn),
		DB:     db.NewFromConn(conn),
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc, conn
}

func TestRegisterAndGet(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	id := uuid.New()

	created, err := svc.Register(ctx, RegisterInput{ID: id, DisplayName: "  Ana  ", Score: 620})
	require.NoError(t, err)
	assert.Equal(t, id, created.ID)
	assert.Equal(t, "Ana", created.DisplayName)
	assert.True(t, created.Balance.IsZero())

	require.NoError(t, conn.Create(&models.Quota{
		MemberID:      id,
		PurchasePrice: decimal.NewFromInt(50),
		CurrentValue:  decimal.NewFromInt(50),
		PurchaseDate:  fixedNow,
		Status:        enums.QuotaActive,
	}).Error)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 620, got.Score)
	assert.Equal(t, int64(1), got.ActiveQuotas)
}

func TestRegisterValidates(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), RegisterInput{DisplayName: " "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Register(context.Background(), RegisterInput{DisplayName: "x", Score: MaxScore + 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetHidesSystemPool(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), testdb.SystemPoolID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateScoreUnknownMember(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.UpdateScore(context.Background(), uuid.New(), 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDepositEmitsEvent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "0", 0)

	txn, err := svc.Deposit(ctx, DepositInput{
		MemberID:  member.ID,
		Amount:    decimal.RequireFromString("150.00"),
		Reference: "pix-123",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionDeposit, txn.Type)
	assert.Equal(t, "pix-123", txn.Metadata["reference"])
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, int64(1), testdb.CountEvents(t, conn, enums.EventMemberDeposited))
}

func TestWithdrawBlockedBySecurityLock(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	member := testdb.SeedMember(t, conn, "100.00", 0)

	until := fixedNow.Add(24 * time.Hour)
	require.NoError(t, svc.SetSecurityLock(ctx, member.ID, &until))

	_, err := svc.Withdraw(ctx, WithdrawInput{MemberID: member.ID, Amount: decimal.NewFromInt(10)})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSecurityLock))
	assert.True(t, testdb.Reload(t, conn, member.ID).Balance.Equal(decimal.NewFromInt(100)))

	require.NoError(t, svc.SetSecurityLock(ctx, member.ID, nil))
	txn, err := svc.Withdraw(ctx, WithdrawInput{MemberID: member.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.True(t, txn.BalanceAfter.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, int64(1), testdb.CountEvents(t, conn, enums.EventWithdrawalRequested))
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc, conn := newTestService(t)
	member := testdb.SeedMember(t, conn, "5.00", 0)

	_, err := svc.Withdraw(context.Background(), WithdrawInput{MemberID: member.ID, Amount: decimal.NewFromInt(6)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Zero(t, testdb.CountEvents(t, conn, enums.EventWithdrawalRequested))
}
