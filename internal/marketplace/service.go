package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/cred30-backend/internal/credit"
	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/money"
	"github.com/angelmondragon/cred30-backend/pkg/outbox"
	"github.com/angelmondragon/cred30-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/cred30-backend/pkg/pagination"
)

const maxTitleLength = 140

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LoanOpener finances a purchase inside the caller's transaction.
type LoanOpener interface {
	OpenLoan(ctx context.Context, tx *gorm.DB, input credit.RequestInput) (*models.Loan, error)
}

// Service runs listings and escrow orders.
type Service interface {
	CreateListing(ctx context.Context, input CreateListingInput) (*ListingDTO, error)
	GetListing(ctx context.Context, listingID uuid.UUID) (*ListingDTO, error)
	ListListings(ctx context.Context, limit int) ([]ListingDTO, error)
	Buy(ctx context.Context, input BuyInput) (*OrderDTO, error)
	BuyOnCredit(ctx context.Context, input BuyInput) (*OrderDTO, error)
	ConfirmReceipt(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDTO, error)
	BoostListing(ctx context.Context, listingID, sellerID uuid.UUID) (*ListingDTO, error)
	GetOrder(ctx context.Context, memberID, orderID uuid.UUID) (*OrderDTO, error)
	ListOrders(ctx context.Context, memberID uuid.UUID) ([]OrderDTO, error)
}

// ServiceParams wires the marketplace service.
type ServiceParams struct {
	Repo   Repository
	Ledger ledger.Service
	Loans  LoanOpener
	Outbox outbox.Emitter
	DB     txRunner
	Policy Policy
	Now    func() time.Time
}

type service struct {
	repo   Repository
	ledger ledger.Service
	loans  LoanOpener
	outbox outbox.Emitter
	tx     txRunner
	policy Policy
	now    func() time.Time
}

// NewService builds a marketplace service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("marketplace repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan opener required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Policy.FeeRate.IsNegative() || params.Policy.FeeRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate must be between 0 and 1")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:   params.Repo,
		ledger: params.Ledger,
		loans:  params.Loans,
		outbox: params.Outbox,
		tx:     params.DB,
		policy: params.Policy,
		now:    now,
	}, nil
}

func (s *service) CreateListing(ctx context.Context, input CreateListingInput) (*ListingDTO, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("title must be 1-%d characters", maxTitleLength))
	}
	if err := money.ValidateAmount(input.Price); err != nil {
		return nil, err
	}
	exists, err := s.repo.MemberExists(ctx, input.SellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}

	listing := &models.Listing{
		SellerID:    input.SellerID,
		Title:       title,
		Description: input.Description,
		Price:       input.Price,
		Status:      enums.ListingActive,
	}
	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
	}
	dto := toListingDTO(*listing, s.now())
	return &dto, nil
}

func (s *service) GetListing(ctx context.Context, listingID uuid.UUID) (*ListingDTO, error) {
	listing, err := s.repo.FindListing(ctx, listingID)
	if err != nil {
		return nil, mapListingErr(err)
	}
	dto := toListingDTO(*listing, s.now())
	return &dto, nil
}

func (s *service) ListListings(ctx context.Context, limit int) ([]ListingDTO, error) {
	rows, err := s.repo.ListActiveListings(ctx, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	now := s.now()
	out := make([]ListingDTO, len(rows))
	for i, row := range rows {
		out[i] = toListingDTO(row, now)
	}
	return out, nil
}

// Buy moves the price from the buyer into the pool and opens the escrow order.
// Nothing reaches the seller until the buyer confirms receipt.
func (s *service) Buy(ctx context.Context, input BuyInput) (*OrderDTO, error) {
	var order *models.EscrowOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		listing, err := s.lockBuyableListing(ctx, tx, input)
		if err != nil {
			return err
		}
		order, err = s.openOrder(ctx, tx, listing, input, enums.MarketPaymentBalance, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toOrderDTO(*order), nil
}

// BuyOnCredit finances the price with a loan in the same transaction, then holds
// the disbursed principal in escrow exactly like a balance purchase.
func (s *service) BuyOnCredit(ctx context.Context, input BuyInput) (*OrderDTO, error) {
	var order *models.EscrowOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		listing, err := s.lockBuyableListing(ctx, tx, input)
		if err != nil {
			return err
		}
		loan, err := s.loans.OpenLoan(ctx, tx, credit.RequestInput{
			MemberID:     input.BuyerID,
			Principal:    listing.Price,
			Installments: input.Installments,
		})
		if err != nil {
			return err
		}
		order, err = s.openOrder(ctx, tx, listing, input, enums.MarketPaymentCredit, loan)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toOrderDTO(*order), nil
}

func (s *service) lockBuyableListing(ctx context.Context, tx *gorm.DB, input BuyInput) (*models.Listing, error) {
	listing, err := s.repo.WithTx(tx).LockListing(ctx, input.ListingID)
	if err != nil {
		return nil, mapListingErr(err)
	}
	if listing.Status != enums.ListingActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not available").
			WithDetails(map[string]any{"status": listing.Status})
	}
	if listing.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sellers cannot buy their own listing")
	}
	return listing, nil
}

func (s *service) openOrder(ctx context.Context, tx *gorm.DB, listing *models.Listing, input BuyInput, method enums.MarketPaymentMethod, loan *models.Loan) (*models.EscrowOrder, error) {
	fee, sellerAmount := s.policy.Split(listing.Price)
	order := &models.EscrowOrder{
		ListingID:     listing.ID,
		BuyerID:       input.BuyerID,
		SellerID:      listing.SellerID,
		Amount:        listing.Price,
		SellerAmount:  sellerAmount,
		FeeAmount:     fee,
		Status:        enums.EscrowWaitingShipping,
		PaymentMethod: method,
		DeliveryInfo:  input.DeliveryInfo,
	}
	if loan != nil {
		installments := loan.Installments
		order.Installments = &installments
		order.LoanID = &loan.ID
	}

	repo := s.repo.WithTx(tx)
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow order")
	}
	if _, err := s.ledger.Transfer(ctx, tx, ledger.Transfer{
		From:        input.BuyerID,
		To:          ledger.SystemPoolID,
		Type:        enums.TransactionMarketPurchase,
		Amount:      order.Amount,
		Reference:   &ledger.Reference{Type: "escrow_order", ID: order.ID},
		Description: "escrow hold: " + listing.Title,
	}); err != nil {
		return nil, err
	}
	if err := repo.UpdateListing(ctx, listing.ID, map[string]any{"status": enums.ListingSold}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing sold")
	}

	if err := s.emitOrder(ctx, tx, enums.EventEscrowOrderCreated, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmReceipt is the only path that releases escrowed funds to the seller.
// The fee share stays in the pool.
func (s *service) ConfirmReceipt(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDTO, error) {
	var order *models.EscrowOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.LockOrder(ctx, orderID)
		if err != nil {
			return mapOrderErr(err)
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can confirm receipt")
		}
		if order.Status != enums.EscrowWaitingShipping {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already resolved").
				WithDetails(map[string]any{"status": order.Status})
		}

		now := s.now()
		if err := repo.CompleteOrder(ctx, order.ID, now); err != nil {
			if errors.Is(err, errOrderNotWaiting) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order already resolved")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete escrow order")
		}
		order.Status = enums.EscrowCompleted
		order.CompletedAt = &now

		if order.SellerAmount.IsPositive() {
			if _, err := s.ledger.Transfer(ctx, tx, ledger.Transfer{
				From:        ledger.SystemPoolID,
				To:          order.SellerID,
				Type:        enums.TransactionEscrowRelease,
				Amount:      order.SellerAmount,
				Reference:   &ledger.Reference{Type: "escrow_order", ID: order.ID},
				Description: "escrow release",
				Metadata:    map[string]any{"fee_amount": order.FeeAmount.String()},
			}); err != nil {
				return err
			}
		}
		return s.emitOrder(ctx, tx, enums.EventEscrowOrderCompleted, order)
	})
	if err != nil {
		return nil, err
	}
	return toOrderDTO(*order), nil
}

// BoostListing charges the flat boost fee and extends the boost window.
func (s *service) BoostListing(ctx context.Context, listingID, sellerID uuid.UUID) (*ListingDTO, error) {
	if err := money.ValidateAmount(s.policy.BoostFee); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "boost fee misconfigured")
	}

	var listing *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		listing, err = repo.LockListing(ctx, listingID)
		if err != nil {
			return mapListingErr(err)
		}
		if listing.SellerID != sellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can boost a listing")
		}
		if listing.Status != enums.ListingActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only active listings can be boosted").
				WithDetails(map[string]any{"status": listing.Status})
		}

		if _, err := s.ledger.Transfer(ctx, tx, ledger.Transfer{
			From:        sellerID,
			To:          ledger.SystemPoolID,
			Type:        enums.TransactionListingBoost,
			Amount:      s.policy.BoostFee,
			Reference:   &ledger.Reference{Type: "listing", ID: listing.ID},
			Description: "listing boost",
		}); err != nil {
			return err
		}

		until := s.policy.ExtendBoost(listing.BoostedUntil, s.now())
		if err := repo.UpdateListing(ctx, listing.ID, map[string]any{"boosted_until": until}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "boost listing")
		}
		listing.BoostedUntil = &until

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingBoosted,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			Actor:         &outbox.ActorRef{MemberID: sellerID, Role: string(enums.MemberRoleMember)},
			Data: payloads.ListingBoostedEvent{
				ListingID:    listing.ID,
				SellerID:     sellerID,
				Fee:          s.policy.BoostFee,
				BoostedUntil: until,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	dto := toListingDTO(*listing, s.now())
	return &dto, nil
}

// GetOrder is visible to both parties; the seller reads delivery info from it.
func (s *service) GetOrder(ctx context.Context, memberID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapOrderErr(err)
	}
	if order.BuyerID != memberID && order.SellerID != memberID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return toOrderDTO(*order), nil
}

func (s *service) ListOrders(ctx context.Context, memberID uuid.UUID) ([]OrderDTO, error) {
	rows, err := s.repo.ListOrdersByMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	out := make([]OrderDTO, len(rows))
	for i, row := range rows {
		out[i] = *toOrderDTO(row)
	}
	return out, nil
}

func (s *service) emitOrder(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.EscrowOrder) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEscrowOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{MemberID: order.BuyerID, Role: string(enums.MemberRoleMember)},
		Data: payloads.EscrowOrderEvent{
			OrderID:       order.ID,
			ListingID:     order.ListingID,
			BuyerID:       order.BuyerID,
			SellerID:      order.SellerID,
			Amount:        order.Amount,
			SellerAmount:  order.SellerAmount,
			Status:        order.Status,
			PaymentMethod: order.PaymentMethod,
			LoanID:        order.LoanID,
		},
	})
}

func mapListingErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
}

func mapOrderErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
