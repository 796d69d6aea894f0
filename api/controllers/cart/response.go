package cart

import (
	cartsvc "github.com/gu-corp/nft-cart-backend/internal/cart"
)

type currencyResponse struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Contract string `json:"contract"`
	Logo     string `json:"logo,omitempty"`
}

type itemResponse struct {
	Key        string  `json:"key"`
	TokenID    string  `json:"tokenId"`
	Collection string  `json:"collection"`
	Name       string  `json:"name,omitempty"`
	Image      *string `json:"image,omitempty"`
	Price      string  `json:"price"`
	Currency   string  `json:"currency,omitempty"`
	Available  bool    `json:"available"`
}

type transactionResponse struct {
	Status    string `json:"status"`
	TxHash    string `json:"txHash,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
}

type cartResponse struct {
	Items                []itemResponse       `json:"items"`
	TotalPrice           string               `json:"totalPrice"`
	Currency             *currencyResponse    `json:"currency,omitempty"`
	Referrer             string               `json:"referrer,omitempty"`
	ReferrerFeeBps       int                  `json:"referrerFeeBps,omitempty"`
	ReferrerFee          string               `json:"referrerFee"`
	IsValidating         bool                 `json:"isValidating"`
	PendingTransactionID string               `json:"pendingTransactionId,omitempty"`
	Transaction          *transactionResponse `json:"transaction,omitempty"`
}

type validateResponse struct {
	Ran  bool         `json:"ran"`
	Cart cartResponse `json:"cart"`
}

func newCartResponse(state cartsvc.Cart) cartResponse {
	items := make([]itemResponse, 0, len(state.Items))
	for _, it := range state.Items {
		items = append(items, itemResponse{
			Key:        it.Key(),
			TokenID:    it.Token.ID,
			Collection: it.Token.Collection,
			Name:       it.Token.Name,
			Image:      it.Token.Image,
			Price:      it.Price,
			Currency:   it.Currency,
			Available:  it.Available(),
		})
	}

	out := cartResponse{
		Items:                items,
		TotalPrice:           state.TotalPrice,
		Referrer:             state.Referrer,
		ReferrerFeeBps:       state.ReferrerFeeBps,
		ReferrerFee:          state.ReferrerFee,
		IsValidating:         state.IsValidating,
		PendingTransactionID: state.PendingTransactionID,
	}
	if state.Currency != nil {
		out.Currency = &currencyResponse{
			Symbol:   state.Currency.Symbol,
			Decimals: state.Currency.Decimals,
			Contract: state.Currency.Contract,
			Logo:     state.Currency.LogoURL,
		}
	}
	if state.Transaction != nil {
		out.Transaction = &transactionResponse{
			Status:    state.Transaction.Status.String(),
			TxHash:    state.Transaction.TxHash,
			Error:     state.Transaction.Error,
			ErrorType: state.Transaction.ErrorType.String(),
		}
	}
	return out
}
