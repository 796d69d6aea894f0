package controllers

import (
	"net/http"
	"time"

	"github.com/gu-corp/nft-cart-backend/api/responses"
	"github.com/gu-corp/nft-cart-backend/api/validators"
	"github.com/gu-corp/nft-cart-backend/internal/session"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
)

type sessionRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	Wallet    string    `json:"wallet"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionCreate mints a wallet session token.
func SessionCreate(sessions session.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}

		var payload sessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess, err := sessions.Issue(r.Context(), payload.Address)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponse{
			Token:     sess.Token,
			Wallet:    sess.Wallet,
			ExpiresAt: sess.ExpiresAt,
		})
	}
}
