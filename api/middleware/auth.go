package middleware

import (
	"net/http"
	"strings"

	"github.com/gu-corp/nft-cart-backend/api/responses"
	"github.com/gu-corp/nft-cart-backend/internal/session"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
)

// Auth validates the wallet session bearer token and seeds the request
// context with the wallet address.
func Auth(sessions session.Service, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			wallet, err := sessions.Verify(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithWallet(r.Context(), wallet)
			if logg != nil {
				ctx = logg.WithWallet(ctx, wallet)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
