package cart

import "github.com/shopspring/decimal"

// Pricing holds the derived totals for a cart, as exact decimal strings
// in the currency's smallest unit.
type Pricing struct {
	TotalPrice  string
	ReferrerFee string
}

// CalculatePricing sums every parseable item price and derives the
// referrer fee as floor(total * bps / 10000). Prices are arbitrary
// precision; unparseable or negative prices contribute nothing.
func CalculatePricing(items []Item, referrerFeeBps int) Pricing {
	total := decimal.Zero
	for _, it := range items {
		d, err := decimal.NewFromString(it.Price)
		if err != nil || d.IsNegative() {
			continue
		}
		total = total.Add(d)
	}

	fee := decimal.Zero
	if referrerFeeBps > 0 && total.IsPositive() {
		fee = total.
			Mul(decimal.NewFromInt(int64(referrerFeeBps))).
			Div(decimal.NewFromInt(10000)).
			Floor()
	}

	return Pricing{
		TotalPrice:  total.String(),
		ReferrerFee: fee.String(),
	}
}
