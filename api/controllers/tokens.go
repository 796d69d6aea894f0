package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gu-corp/nft-cart-backend/api/responses"
	"github.com/gu-corp/nft-cart-backend/internal/cart"
	"github.com/gu-corp/nft-cart-backend/internal/tokens"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
)

type tokenDetailResponse struct {
	Contract string     `json:"contract"`
	TokenID  string     `json:"tokenId"`
	Name     string     `json:"name,omitempty"`
	Image    *string    `json:"image,omitempty"`
	Owner    string     `json:"owner"`
	Asks     []cart.Ask `json:"asks,omitempty"`
}

// TokenDetail resolves one "<contract>-<tokenId>" key against the index.
func TokenDetail(svc tokens.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "token service unavailable"))
			return
		}

		key := chi.URLParam(r, "key")
		detail, err := svc.Lookup(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if detail == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "token not indexed"))
			return
		}

		responses.WriteSuccess(w, tokenDetailResponse{
			Contract: detail.Contract,
			TokenID:  detail.TokenID,
			Name:     detail.Name,
			Image:    detail.Image,
			Owner:    detail.Owner,
			Asks:     detail.Asks,
		})
	}
}
