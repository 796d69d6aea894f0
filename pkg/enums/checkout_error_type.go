package enums

// CheckoutErrorType classifies checkout failures so the client can pick
// the right messaging for each case.
type CheckoutErrorType string

const (
	CheckoutErrorUnknown             CheckoutErrorType = "unknown"
	CheckoutErrorPriceMismatch       CheckoutErrorType = "price_mismatch"
	CheckoutErrorInsufficientBalance CheckoutErrorType = "insufficient_balance"
	CheckoutErrorUserDenied          CheckoutErrorType = "user_denied"
)

// String implements fmt.Stringer.
func (e CheckoutErrorType) String() string {
	return string(e)
}
