package controllers

import (
	"net/http"

	"github.com/gu-corp/nft-cart-backend/api/middleware"
	"github.com/gu-corp/nft-cart-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if wallet := middleware.WalletFromContext(r.Context()); wallet != "" {
			payload["wallet"] = wallet
		}
		responses.WriteSuccess(w, payload)
	}
}
