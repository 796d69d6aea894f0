package middleware

import "context"

type contextKey string

const ctxWallet contextKey = "wallet"

// WalletFromContext returns the authenticated wallet address, or "".
func WalletFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxWallet).(string); ok {
		return v
	}
	return ""
}

// WithWallet injects the wallet address into the context.
func WithWallet(ctx context.Context, wallet string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxWallet, wallet)
}
