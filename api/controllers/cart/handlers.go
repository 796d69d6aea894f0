package cart

import (
	"net/http"

	"github.com/gu-corp/nft-cart-backend/api/middleware"
	"github.com/gu-corp/nft-cart-backend/api/responses"
	"github.com/gu-corp/nft-cart-backend/api/validators"
	cartsvc "github.com/gu-corp/nft-cart-backend/internal/cart"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
)

func storeFromRequest(r *http.Request, manager *cartsvc.Manager) (*cartsvc.Store, error) {
	wallet := middleware.WalletFromContext(r.Context())
	if wallet == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "wallet context missing")
	}
	return manager.StoreFor(r.Context(), wallet)
}

// Fetch returns the wallet's current cart state.
func Fetch(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Get()))
	}
}

// AddItems appends tokens to the cart.
func AddItems(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addItemsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := store.Add(r.Context(), toAddTokens(payload)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Get()))
	}
}

// RemoveItems drops the items matching the given keys.
func RemoveItems(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload removeItemsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := store.Remove(r.Context(), payload.Keys); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Get()))
	}
}

// Clear empties the cart.
func Clear(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Get()))
	}
}

// Validate runs one reconciliation pass against the token index.
func Validate(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ran, err := store.Validate(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, validateResponse{Ran: ran, Cart: newCartResponse(store.Get())})
	}
}

// Checkout submits the cart as one bulk purchase.
func Checkout(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Checkout(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Get()))
	}
}

// ClearTransaction forgets the last checkout outcome.
func ClearTransaction(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.ClearTransaction(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Get()))
	}
}

// SetReferral attaches or detaches the referrer fee pair.
func SetReferral(manager *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload referralRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := store.SetReferral(r.Context(), payload.Referrer, payload.FeeBps); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(store.Get()))
	}
}
