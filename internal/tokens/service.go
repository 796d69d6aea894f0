// Package tokens resolves cart item keys against the indexed tokens and
// asks tables.
package tokens

import (
	"context"
	"strings"

	"github.com/gu-corp/nft-cart-backend/internal/cart"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
)

// Service implements the cart's token lookup over the index tables.
type Service interface {
	Lookup(ctx context.Context, key string) (*cart.TokenDetail, error)
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token repository is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// SplitKey parses a "<contract>-<tokenId>" lookup key. The contract is
// a fixed-width hex address, so the first dash always terminates it.
func SplitKey(key string) (contract, tokenID string, err error) {
	idx := strings.Index(key, "-")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "token key must be <contract>-<tokenId>")
	}
	return key[:idx], key[idx+1:], nil
}

// Lookup returns the indexed detail for key, or (nil, nil) when the
// token is unknown. Asks are ordered cheapest first; callers treat the
// head as the purchasable listing.
func (s *service) Lookup(ctx context.Context, key string) (*cart.TokenDetail, error) {
	contract, tokenID, err := SplitKey(key)
	if err != nil {
		return nil, err
	}

	token, err := s.repo.FindToken(ctx, contract, tokenID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "querying token index")
	}
	if token == nil {
		return nil, nil
	}

	asks, err := s.repo.ActiveAsks(ctx, contract, tokenID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "querying active asks")
	}

	detail := &cart.TokenDetail{
		Contract: token.Contract,
		TokenID:  token.TokenID,
		Name:     token.Name,
		Image:    token.ImageURL,
		Owner:    token.Owner,
	}
	for _, ask := range asks {
		detail.Asks = append(detail.Asks, cart.Ask{
			Signer:   ask.Signer,
			Price:    ask.Price,
			Currency: ask.Currency,
		})
	}
	return detail, nil
}
