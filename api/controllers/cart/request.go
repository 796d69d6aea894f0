package cart

import (
	cartsvc "github.com/gu-corp/nft-cart-backend/internal/cart"
)

type askPayload struct {
	Signer   string `json:"signer" validate:"required,eth_addr"`
	Price    string `json:"price" validate:"required"`
	Currency string `json:"currency" validate:"required,eth_addr"`
}

type tokenPayload struct {
	ID         string       `json:"id" validate:"required"`
	Collection string       `json:"collection" validate:"required"`
	Name       string       `json:"name"`
	Image      *string      `json:"image"`
	Owner      string       `json:"owner" validate:"omitempty,eth_addr"`
	Asks       []askPayload `json:"asks" validate:"dive"`
}

type addItemsRequest struct {
	Tokens []tokenPayload `json:"tokens" validate:"required,min=1,max=100,dive"`
}

type removeItemsRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required"`
}

type referralRequest struct {
	Referrer string `json:"referrer" validate:"omitempty,eth_addr"`
	FeeBps   int    `json:"feeBps" validate:"gte=0,lte=10000"`
}

func toAddTokens(payload addItemsRequest) []cartsvc.AddToken {
	tokens := make([]cartsvc.AddToken, 0, len(payload.Tokens))
	for _, t := range payload.Tokens {
		token := cartsvc.AddToken{
			ID:         t.ID,
			Collection: t.Collection,
			Name:       t.Name,
			Image:      t.Image,
			Owner:      t.Owner,
		}
		for _, a := range t.Asks {
			token.Asks = append(token.Asks, cartsvc.Ask{
				Signer:   a.Signer,
				Price:    a.Price,
				Currency: a.Currency,
			})
		}
		tokens = append(tokens, token)
	}
	return tokens
}
