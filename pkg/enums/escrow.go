package enums

import "fmt"

// EscrowOrderStatus: WAITING_SHIPPING -> {COMPLETED | CANCELLED}.
type EscrowOrderStatus string

const (
	EscrowWaitingShipping EscrowOrderStatus = "WAITING_SHIPPING"
	EscrowCompleted       EscrowOrderStatus = "COMPLETED"
	EscrowCancelled       EscrowOrderStatus = "CANCELLED"
)

func (s EscrowOrderStatus) IsValid() bool {
	switch s {
	case EscrowWaitingShipping, EscrowCompleted, EscrowCancelled:
		return true
	}
	return false
}

func (s EscrowOrderStatus) IsTerminal() bool {
	return s == EscrowCompleted || s == EscrowCancelled
}

// MarketPaymentMethod records how an escrow order was funded.
type MarketPaymentMethod string

const (
	MarketPaymentBalance MarketPaymentMethod = "BALANCE"
	MarketPaymentCredit  MarketPaymentMethod = "CRED30_CREDIT"
)

func (m MarketPaymentMethod) IsValid() bool {
	return m == MarketPaymentBalance || m == MarketPaymentCredit
}

// ParseMarketPaymentMethod converts raw input into a MarketPaymentMethod.
func ParseMarketPaymentMethod(value string) (MarketPaymentMethod, error) {
	m := MarketPaymentMethod(value)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid market payment method %q", value)
	}
	return m, nil
}

// ListingStatus tracks whether a listing can be bought.
type ListingStatus string

const (
	ListingActive ListingStatus = "ACTIVE"
	ListingSold   ListingStatus = "SOLD"
	ListingPaused ListingStatus = "PAUSED"
)

func (s ListingStatus) IsValid() bool {
	switch s {
	case ListingActive, ListingSold, ListingPaused:
		return true
	}
	return false
}
