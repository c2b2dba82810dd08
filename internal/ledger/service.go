package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/metrics"
	"github.com/angelmondragon/cred30-backend/pkg/money"
	"github.com/angelmondragon/cred30-backend/pkg/pagination"
	"github.com/angelmondragon/cred30-backend/pkg/types"
)

// SystemPoolID is the platform account that holds quota capital, escrow funds and fees.
var SystemPoolID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

var errAlreadyResolved = errors.New("transaction already resolved")

// Reference points a journal entry at the domain row that caused it.
type Reference struct {
	Type string
	ID   uuid.UUID
}

// Entry is a single balance movement on one account.
type Entry struct {
	MemberID    uuid.UUID
	Type        enums.TransactionType
	Direction   enums.Direction
	Amount      decimal.Decimal
	Reference   *Reference
	Description string
	Metadata    types.JSONMap
}

// Transfer moves Amount from one account to another as two journal legs of the same type.
type Transfer struct {
	From        uuid.UUID
	To          uuid.UUID
	Type        enums.TransactionType
	Amount      decimal.Decimal
	Reference   *Reference
	Description string
	Metadata    types.JSONMap
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Debit  *models.Transaction
	Credit *models.Transaction
}

// HistoryPage is one page of a member's journal, newest first.
type HistoryPage struct {
	Items      []models.Transaction
	NextCursor string
}

// Reconciliation compares the cached balance with the journal.
type Reconciliation struct {
	MemberID       uuid.UUID       `json:"member_id"`
	CachedBalance  decimal.Decimal `json:"cached_balance"`
	JournalBalance decimal.Decimal `json:"journal_balance"`
	ApprovedCount  int             `json:"approved_count"`
	Consistent     bool            `json:"consistent"`
}

// Service is the only writer of member balances.
type Service interface {
	Apply(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	OpenPending(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error)
	Approve(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, error)
	Reject(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, reason string) (*models.Transaction, error)
	Transfer(ctx context.Context, tx *gorm.DB, transfer Transfer) (*TransferResult, error)
	Balance(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error)
	History(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	Reconcile(ctx context.Context, memberID uuid.UUID) (*Reconciliation, error)
	ReconcileAll(ctx context.Context) ([]Reconciliation, error)
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo    Repository
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Now     func() time.Time
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Apply(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger apply requires a transaction")
	}
	if err := validateEntry(entry); err != nil {
		return nil, s.refuse(err)
	}

	repo := s.repo.WithTx(tx)
	before, after, err := s.post(ctx, repo, entry.MemberID, entry.Direction, entry.Amount)
	if err != nil {
		return nil, err
	}

	txn := buildTransaction(entry, enums.TransactionApproved)
	txn.BalanceBefore = &before
	txn.BalanceAfter = &after
	resolved := s.now()
	txn.ResolvedAt = &resolved
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert journal entry")
	}

	s.metrics.IncEntry(string(txn.Type), string(txn.Status))
	return txn, nil
}

func (s *service) OpenPending(ctx context.Context, tx *gorm.DB, entry Entry) (*models.Transaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger open pending requires a transaction")
	}
	if err := validateEntry(entry); err != nil {
		return nil, s.refuse(err)
	}

	repo := s.repo.WithTx(tx)
	if _, err := s.findMember(ctx, repo, entry.MemberID); err != nil {
		return nil, err
	}

	txn := buildTransaction(entry, enums.TransactionPending)
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert pending journal entry")
	}
	s.metrics.IncEntry(string(txn.Type), string(txn.Status))
	return txn, nil
}

func (s *service) Approve(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger approve requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	txn, err := s.lockPending(ctx, repo, transactionID)
	if err != nil {
		return nil, err
	}

	before, after, err := s.post(ctx, repo, txn.MemberID, txn.Direction, txn.Amount)
	if err != nil {
		return nil, err
	}

	resolved := s.now()
	txn.Status = enums.TransactionApproved
	txn.BalanceBefore = &before
	txn.BalanceAfter = &after
	txn.ResolvedAt = &resolved
	if err := s.resolve(ctx, repo, txn); err != nil {
		return nil, err
	}
	s.metrics.IncEntry(string(txn.Type), string(txn.Status))
	return txn, nil
}

func (s *service) Reject(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, reason string) (*models.Transaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger reject requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	txn, err := s.lockPending(ctx, repo, transactionID)
	if err != nil {
		return nil, err
	}

	resolved := s.now()
	txn.Status = enums.TransactionRejected
	txn.ResolvedAt = &resolved
	if reason != "" {
		txn.RejectReason = &reason
	}
	if err := s.resolve(ctx, repo, txn); err != nil {
		return nil, err
	}
	s.metrics.IncEntry(string(txn.Type), string(txn.Status))
	return txn, nil
}

// Transfer locks the member side of both legs in id order before writing
// either leg. System accounts are never row-locked; their leg is a single
// relative update so concurrent transfers do not queue behind the pool.
func (s *service) Transfer(ctx context.Context, tx *gorm.DB, transfer Transfer) (*TransferResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger transfer requires a transaction")
	}
	if transfer.From == transfer.To {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer accounts must differ")
	}
	if err := money.ValidateAmount(transfer.Amount); err != nil {
		return nil, s.refuse(err)
	}

	repo := s.repo.WithTx(tx)
	ids := []uuid.UUID{transfer.From, transfer.To}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		member, err := s.findMember(ctx, repo, id)
		if err != nil {
			return nil, err
		}
		if member.Kind == enums.MemberKindSystem {
			continue
		}
		if _, err := s.lockMember(ctx, repo, id); err != nil {
			return nil, err
		}
	}

	debit, err := s.Apply(ctx, tx, Entry{
		MemberID:    transfer.From,
		Type:        transfer.Type,
		Direction:   enums.DirectionDebit,
		Amount:      transfer.Amount,
		Reference:   transfer.Reference,
		Description: transfer.Description,
		Metadata:    transfer.Metadata,
	})
	if err != nil {
		return nil, err
	}
	credit, err := s.Apply(ctx, tx, Entry{
		MemberID:    transfer.To,
		Type:        transfer.Type,
		Direction:   enums.DirectionCredit,
		Amount:      transfer.Amount,
		Reference:   transfer.Reference,
		Description: transfer.Description,
		Metadata:    transfer.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &TransferResult{Debit: debit, Credit: credit}, nil
}

func (s *service) Balance(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	member, err := s.findMember(ctx, s.repo, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	return member.Balance, nil
}

func (s *service) History(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	if _, err := s.findMember(ctx, s.repo, memberID); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListTransactions(ctx, memberID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list journal entries")
	}

	items, next := pagination.Trim(rows, params.Limit, func(txn models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: txn.CreatedAt, ID: txn.ID}
	})
	return &HistoryPage{Items: items, NextCursor: next}, nil
}

func (s *service) Reconcile(ctx context.Context, memberID uuid.UUID) (*Reconciliation, error) {
	member, err := s.findMember(ctx, s.repo, memberID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListApproved(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approved entries")
	}

	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Signed())
	}
	result := &Reconciliation{
		MemberID:       member.ID,
		CachedBalance:  member.Balance,
		JournalBalance: sum,
		ApprovedCount:  len(rows),
		Consistent:     sum.Equal(member.Balance),
	}
	s.metrics.ObserveReconcile(result.Consistent)
	if !result.Consistent {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"member_id":       member.ID.String(),
			"cached_balance":  member.Balance.String(),
			"journal_balance": sum.String(),
		})
		s.logg.Warn(logCtx, "ledger balance mismatch")
	}
	return result, nil
}

// ReconcileAll checks every account and returns only the inconsistent ones.
func (s *service) ReconcileAll(ctx context.Context) ([]Reconciliation, error) {
	ids, err := s.repo.ListMemberIDs(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}
	mismatches := make([]Reconciliation, 0)
	for _, id := range ids {
		result, err := s.Reconcile(ctx, id)
		if err != nil {
			return nil, err
		}
		if !result.Consistent {
			mismatches = append(mismatches, *result)
		}
	}
	return mismatches, nil
}

// post moves one account's cached balance. Member rows are locked and written
// under their version; system rows take an unlocked relative update.
func (s *service) post(ctx context.Context, repo Repository, memberID uuid.UUID, direction enums.Direction, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	account, err := s.findMember(ctx, repo, memberID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if account.Kind == enums.MemberKindSystem {
		delta := amount
		if direction == enums.DirectionDebit {
			delta = amount.Neg()
		}
		after, err := repo.AdjustSystemBalance(ctx, memberID, delta)
		if err != nil {
			return decimal.Zero, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust system balance")
		}
		return after.Sub(delta), after, nil
	}

	member, err := s.lockMember(ctx, repo, memberID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	before := member.Balance
	after, err := nextBalance(member, direction, amount)
	if err != nil {
		return decimal.Zero, decimal.Zero, s.refuse(err)
	}
	if err := repo.UpdateBalance(ctx, member, after); err != nil {
		if errors.Is(err, errStaleMember) {
			return decimal.Zero, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "member changed concurrently")
		}
		return decimal.Zero, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update member balance")
	}
	return before, after, nil
}

func (s *service) lockMember(ctx context.Context, repo Repository, id uuid.UUID) (*models.Member, error) {
	member, err := repo.LockMember(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock member")
	}
	return member, nil
}

func (s *service) findMember(ctx context.Context, repo Repository, id uuid.UUID) (*models.Member, error) {
	member, err := repo.FindMember(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return member, nil
}

func (s *service) lockPending(ctx context.Context, repo Repository, id uuid.UUID) (*models.Transaction, error) {
	txn, err := repo.LockTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock transaction")
	}
	if txn.Status != enums.TransactionPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already resolved").
			WithDetails(map[string]any{"status": txn.Status})
	}
	return txn, nil
}

func (s *service) resolve(ctx context.Context, repo Repository, txn *models.Transaction) error {
	if err := repo.ResolveTransaction(ctx, txn); err != nil {
		if errors.Is(err, errAlreadyResolved) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already resolved")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve transaction")
	}
	return nil
}

func (s *service) refuse(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		s.metrics.IncRefused(string(typed.Code()))
	}
	return err
}

func validateEntry(entry Entry) error {
	if entry.MemberID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member id is required")
	}
	if !entry.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", entry.Type))
	}
	if !entry.Direction.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid direction %q", entry.Direction))
	}
	return money.ValidateAmount(entry.Amount)
}

func nextBalance(member *models.Member, direction enums.Direction, amount decimal.Decimal) (decimal.Decimal, error) {
	if direction == enums.DirectionCredit {
		return member.Balance.Add(amount), nil
	}
	after := member.Balance.Sub(amount)
	if after.IsNegative() && !member.Kind.AllowsNegativeBalance() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient balance").
			WithDetails(map[string]any{
				"balance":   member.Balance.String(),
				"requested": amount.String(),
			})
	}
	return after, nil
}

func buildTransaction(entry Entry, status enums.TransactionStatus) *models.Transaction {
	txn := &models.Transaction{
		MemberID:  entry.MemberID,
		Type:      entry.Type,
		Direction: entry.Direction,
		Amount:    entry.Amount,
		Status:    status,
		Metadata:  entry.Metadata,
	}
	if entry.Reference != nil {
		refType := entry.Reference.Type
		refID := entry.Reference.ID
		txn.ReferenceType = &refType
		txn.ReferenceID = &refID
	}
	if entry.Description != "" {
		desc := entry.Description
		txn.Description = &desc
	}
	return txn
}
