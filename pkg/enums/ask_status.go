package enums

import "fmt"

// AskStatus tracks the lifecycle of an indexed sell order.
type AskStatus string

const (
	AskStatusActive    AskStatus = "active"
	AskStatusFilled    AskStatus = "filled"
	AskStatusCancelled AskStatus = "cancelled"
	AskStatusExpired   AskStatus = "expired"
)

var validAskStatuses = []AskStatus{
	AskStatusActive,
	AskStatusFilled,
	AskStatusCancelled,
	AskStatusExpired,
}

// String implements fmt.Stringer.
func (a AskStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AskStatus.
func (a AskStatus) IsValid() bool {
	for _, candidate := range validAskStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAskStatus converts raw input into an AskStatus.
func ParseAskStatus(value string) (AskStatus, error) {
	for _, candidate := range validAskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ask status %q", value)
}
