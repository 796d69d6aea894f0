package cart

import "github.com/gu-corp/nft-cart-backend/pkg/eth"

// Currency is a purchase currency the marketplace settles in.
type Currency struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Contract string `json:"contract"`
	LogoURL  string `json:"logo,omitempty"`
}

// supportedCurrencies is the static registry of currencies the cart can
// display and check out in. Contract addresses are compared
// case-insensitively.
var supportedCurrencies = []Currency{
	{
		Symbol:   "WETH",
		Decimals: 18,
		Contract: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		LogoURL:  "https://assets.nftcart.dev/currencies/weth.svg",
	},
	{
		Symbol:   "USDC",
		Decimals: 6,
		Contract: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		LogoURL:  "https://assets.nftcart.dev/currencies/usdc.svg",
	},
}

// CurrencyByContract returns the registered currency for the contract,
// or nil when the contract is not supported.
func CurrencyByContract(contract string) *Currency {
	for i := range supportedCurrencies {
		if eth.Equal(supportedCurrencies[i].Contract, contract) {
			c := supportedCurrencies[i]
			return &c
		}
	}
	return nil
}

// CartCurrency derives the display currency from the first item that
// carries one. Items whose listing disappeared have no currency and are
// skipped. Returns nil for an empty cart or an unsupported contract.
func CartCurrency(items []Item) *Currency {
	for _, it := range items {
		if it.Currency == "" {
			continue
		}
		return CurrencyByContract(it.Currency)
	}
	return nil
}
