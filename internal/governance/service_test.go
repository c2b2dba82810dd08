package governance

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
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

type noLoans struct{}

func (noLoans) HasOutstanding(context.Context, *gorm.DB, uuid.UUID) (bool, error) {
	return false, nil
}

type harness struct {
	conn       *gorm.DB
	ledger     ledger.Service
	quotas     quotas.Service
	governance Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := testdb.Open(t)
	clock := func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	txRunner := db.NewFromConn(conn)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{Repo: ledger.NewRepository(conn), Logger: testdb.Logger(), Now: clock})
	require.NoError(t, err)
	quotaRepo := quotas.NewRepository(conn)
	quotaSvc, err := quotas.NewService(quotas.ServiceParams{
		Repo:   quotaRepo,
		Ledger: ledgerSvc,
		Outbox: testdb.Outbox(conn),
		DB:     txRunner,
		Loans:  noLoans{},
		Policy: quotas.DefaultPolicy(),
		Now:    clock,
	})
	require.NoError(t, err)
	gov, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Quotas: quotas.NewCollateral(quotaRepo),
		Outbox: testdb.Outbox(conn),
		DB:     txRunner,
		Policy: DefaultPolicy(),
		Now:    clock,
	})
	require.NoError(t, err)
	return &harness{conn: conn, ledger: ledgerSvc, quotas: quotaSvc, governance: gov}
}

// voter seeds a member holding count active quotas.
func (h *harness) voter(t *testing.T, score, count int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	member := testdb.SeedMember(t, h.conn, "0", score)
	if count == 0 {
		return member.ID
	}
	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		_, err := h.ledger.Apply(ctx, tx, ledger.Entry{
			MemberID:  member.ID,
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    decimal.NewFromInt(int64(count * 10)),
		})
		return err
	}))
	_, err := h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: member.ID, Quantity: count, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	return member.ID
}

func (h *harness) proposal(t *testing.T) *ProposalDTO {
	t.Helper()
	proposal, err := h.governance.CreateProposal(context.Background(), CreateProposalInput{
		Title:       "Raise the escrow fee",
		Description: "Move the fee from 5% to 6%.",
		CreatedBy:   uuid.New(),
	})
	require.NoError(t, err)
	return proposal
}

func TestCastVoteEligibilityScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	proposal := h.proposal(t)
	memberID := h.voter(t, 520, 4)

	_, err := h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: memberID, Choice: enums.VoteYes})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIneligible))

	require.NoError(t, h.conn.Transaction(func(tx *gorm.DB) error {
		_, err := h.ledger.Apply(ctx, tx, ledger.Entry{
			MemberID:  memberID,
			Type:      enums.TransactionDeposit,
			Direction: enums.DirectionCredit,
			Amount:    decimal.NewFromInt(10),
		})
		return err
	}))
	_, err = h.quotas.Purchase(ctx, quotas.PurchaseInput{MemberID: memberID, Quantity: 1, UnitPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)

	vote, err := h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: memberID, Choice: enums.VoteYes})
	require.NoError(t, err)
	assert.Equal(t, 5, vote.Weight)

	tally, err := h.governance.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tally.YesVotes)
	assert.Zero(t, tally.NoVotes)
}

func TestCastVoteRequiresScore(t *testing.T) {
	h := newHarness(t)
	proposal := h.proposal(t)
	memberID := h.voter(t, 499, 6)

	_, err := h.governance.CastVote(context.Background(), CastVoteInput{ProposalID: proposal.ID, MemberID: memberID, Choice: enums.VoteNo})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIneligible))
}

func TestVotesAccumulateByWeightAndAreSnapshotted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	proposal := h.proposal(t)
	whale := h.voter(t, 900, 8)
	small := h.voter(t, 600, 5)
	other := h.voter(t, 700, 6)

	_, err := h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: whale, Choice: enums.VoteNo})
	require.NoError(t, err)
	_, err = h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: small, Choice: enums.VoteYes})
	require.NoError(t, err)

	_, err = h.quotas.RedeemAll(ctx, whale)
	require.NoError(t, err)

	_, err = h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: other, Choice: enums.VoteYes})
	require.NoError(t, err)

	tally, err := h.governance.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), tally.YesVotes)
	assert.Equal(t, int64(8), tally.NoVotes)
}

func TestCastVoteTwiceIsAlreadyVoted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	proposal := h.proposal(t)
	memberID := h.voter(t, 600, 5)

	_, err := h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: memberID, Choice: enums.VoteYes})
	require.NoError(t, err)
	_, err = h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: memberID, Choice: enums.VoteNo})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyVoted))

	tally, err := h.governance.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tally.YesVotes)
	assert.Zero(t, tally.NoVotes)
}

func TestCloseProposalStopsVoting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	proposal := h.proposal(t)
	memberID := h.voter(t, 600, 5)
	admin := uuid.New()

	closed, err := h.governance.CloseProposal(ctx, proposal.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, enums.ProposalClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = h.governance.CloseProposal(ctx, proposal.ID, admin)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.governance.CastVote(ctx, CastVoteInput{ProposalID: proposal.ID, MemberID: memberID, Choice: enums.VoteYes})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, int64(1), testdb.CountEvents(t, h.conn, enums.EventProposalClosed))

	active, err := h.governance.ListProposals(ctx, enums.ProposalActive)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCastVoteValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.governance.CastVote(ctx, CastVoteInput{ProposalID: uuid.New(), MemberID: uuid.New(), Choice: "MAYBE"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.governance.CastVote(ctx, CastVoteInput{ProposalID: uuid.New(), MemberID: uuid.New(), Choice: enums.VoteYes})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.governance.CreateProposal(ctx, CreateProposalInput{Title: "  ", Description: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
