package enums

import "fmt"

// QuotaStatus moves strictly forward: PENDING -> ACTIVE -> SOLD.
type QuotaStatus string

const (
	QuotaPending QuotaStatus = "PENDING"
	QuotaActive  QuotaStatus = "ACTIVE"
	QuotaSold    QuotaStatus = "SOLD"
)

var quotaStatusOrder = map[QuotaStatus]int{
	QuotaPending: 0,
	QuotaActive:  1,
	QuotaSold:    2,
}

func (s QuotaStatus) IsValid() bool {
	_, ok := quotaStatusOrder[s]
	return ok
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s QuotaStatus) CanTransitionTo(next QuotaStatus) bool {
	from, ok := quotaStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := quotaStatusOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

// ParseQuotaStatus converts raw input into a QuotaStatus.
func ParseQuotaStatus(value string) (QuotaStatus, error) {
	s := QuotaStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid quota status %q", value)
	}
	return s, nil
}
