package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// DeliveryInfo is the shipping destination a buyer attaches to an escrow order.
type DeliveryInfo struct {
	Recipient  string  `json:"recipient" validate:"required,max=120"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=120"`
	State      string  `json:"state" validate:"required,max=60"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// Value stores the delivery info as a JSON document.
func (d DeliveryInfo) Value() (driver.Value, error) {
	if strings.TrimSpace(d.Line1) == "" {
		return nil, fmt.Errorf("delivery info: missing line1")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes a JSON document into DeliveryInfo.
func (d *DeliveryInfo) Scan(value interface{}) error {
	if value == nil {
		*d = DeliveryInfo{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return fmt.Errorf("delivery info: %w", err)
	}
	return json.Unmarshal(raw, d)
}
