package enums

import "fmt"

// PaymentMethod describes how a member settles a loan payment.
type PaymentMethod string

const (
	PaymentMethodBalance PaymentMethod = "BALANCE"
	PaymentMethodPix     PaymentMethod = "PIX"
	PaymentMethodCard    PaymentMethod = "CARD"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodBalance,
	PaymentMethodPix,
	PaymentMethodCard,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsExternal reports whether the method settles through the payment gateway.
func (p PaymentMethod) IsExternal() bool {
	return p.IsValid() && p != PaymentMethodBalance
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
