package cart

import (
	"strings"

	"github.com/gu-corp/nft-cart-backend/pkg/enums"
)

// ZeroPrice marks an item without an active ask.
const ZeroPrice = "0"

// TokenRef identifies one NFT inside a cart item. Collection is the
// opaque "<contract>:<chainQualifier>" pair used across the platform.
type TokenRef struct {
	ID         string  `json:"id"`
	Name       string  `json:"name,omitempty"`
	Collection string  `json:"collection"`
	Image      *string `json:"image,omitempty"`
}

// Item is one cart line. Price is the exact amount in the currency's
// smallest unit; ZeroPrice plus an empty currency means the listing is
// gone and the item is kept only so the client can flag it.
type Item struct {
	Token    TokenRef `json:"token"`
	Price    string   `json:"price"`
	Currency string   `json:"currency,omitempty"`
}

// Key returns the cart-wide identity "<collection>:<tokenId>".
func (i Item) Key() string {
	return i.Token.Collection + ":" + i.Token.ID
}

// LookupKey returns the token index key "<contract>-<tokenId>".
func (i Item) LookupKey() string {
	contract := i.Token.Collection
	if idx := strings.Index(contract, ":"); idx >= 0 {
		contract = contract[:idx]
	}
	return contract + "-" + i.Token.ID
}

// Available reports whether the item still has a purchasable ask.
func (i Item) Available() bool {
	return i.Price != ZeroPrice && i.Price != "" && i.Currency != ""
}

// Transaction describes an in-flight or settled checkout.
type Transaction struct {
	Status    enums.TransactionStatus `json:"status"`
	TxHash    string                  `json:"txHash,omitempty"`
	Error     string                  `json:"error,omitempty"`
	ErrorType enums.CheckoutErrorType `json:"errorType,omitempty"`
}

// Cart is the aggregate state owned by a Store. TotalPrice, ReferrerFee
// and Currency are derived and recomputed on every mutation.
type Cart struct {
	Items                []Item       `json:"items"`
	TotalPrice           string       `json:"totalPrice"`
	Currency             *Currency    `json:"currency,omitempty"`
	Referrer             string       `json:"referrer,omitempty"`
	ReferrerFeeBps       int          `json:"referrerFeeBps,omitempty"`
	ReferrerFee          string       `json:"referrerFee"`
	IsValidating         bool         `json:"isValidating"`
	PendingTransactionID string       `json:"pendingTransactionId,omitempty"`
	Transaction          *Transaction `json:"transaction,omitempty"`
}

func (c Cart) clone() Cart {
	out := c
	out.Items = make([]Item, len(c.Items))
	copy(out.Items, c.Items)
	if c.Currency != nil {
		currency := *c.Currency
		out.Currency = &currency
	}
	if c.Transaction != nil {
		tx := *c.Transaction
		out.Transaction = &tx
	}
	return out
}

// AddToken is the input shape for Store.Add: a browsed token together
// with its currently indexed owner and active asks.
type AddToken struct {
	ID         string  `json:"id"`
	Collection string  `json:"collection"`
	Name       string  `json:"name,omitempty"`
	Image      *string `json:"image,omitempty"`
	Owner      string  `json:"owner,omitempty"`
	Asks       []Ask   `json:"asks,omitempty"`
}

// Ask carries the order fields the cart cares about.
type Ask struct {
	Signer   string `json:"signer"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
}

// Key returns the cart identity for the incoming token.
func (t AddToken) Key() string {
	return t.Collection + ":" + t.ID
}
