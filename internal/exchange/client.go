// Package exchange fronts the order-book exchange contract used to
// settle bulk purchases. The cart only needs two calls: submit a batch
// buy for a taker wallet and wait for the transaction to mine.
package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
)

// Sentinel failures surfaced by exchange implementations. Callers map
// these onto the checkout error taxonomy.
var (
	ErrPriceMismatch       = errors.New("exchange: ask price changed")
	ErrInsufficientBalance = errors.New("exchange: insufficient balance")
	ErrUserDenied          = errors.New("exchange: user denied transaction")
)

// Order is one fill instruction inside a bulk purchase.
type Order struct {
	Contract string
	TokenID  string
	Price    string
	Currency string
}

// Client submits bulk purchases on behalf of a taker wallet.
type Client interface {
	// ExecuteBulk submits one transaction filling every order and
	// returns its hash once broadcast.
	ExecuteBulk(ctx context.Context, taker string, orders []Order) (string, error)
	// WaitMined blocks until the transaction is mined or ctx expires.
	WaitMined(ctx context.Context, txHash string) error
}

// devClient settles instantly with a deterministic pseudo hash. Used in
// dev environments where no exchange gateway is configured.
type devClient struct {
	mineDelay time.Duration
}

// NewDevClient returns an exchange client that fakes settlement.
func NewDevClient() Client {
	return &devClient{mineDelay: 50 * time.Millisecond}
}

func (c *devClient) ExecuteBulk(ctx context.Context, taker string, orders []Order) (string, error) {
	if len(orders) == 0 {
		return "", errors.New("exchange: no orders to fill")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(orders)+1)
	parts = append(parts, strings.ToLower(taker))
	for _, o := range orders {
		parts = append(parts, strings.ToLower(o.Contract)+"/"+o.TokenID+"/"+o.Price)
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "0x" + hex.EncodeToString(sum[:]), nil
}

func (c *devClient) WaitMined(ctx context.Context, txHash string) error {
	if txHash == "" {
		return errors.New("exchange: empty transaction hash")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.mineDelay):
		return nil
	}
}
