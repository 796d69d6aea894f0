package enums

import "fmt"

// TransactionStatus tracks a cart checkout transaction through its
// lifecycle. Approving covers wallet interaction, Finalizing covers
// waiting for the transaction to be mined.
type TransactionStatus string

const (
	TransactionStatusIdle       TransactionStatus = "idle"
	TransactionStatusApproving  TransactionStatus = "approving"
	TransactionStatusFinalizing TransactionStatus = "finalizing"
	TransactionStatusComplete   TransactionStatus = "complete"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusIdle,
	TransactionStatusApproving,
	TransactionStatusFinalizing,
	TransactionStatusComplete,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
