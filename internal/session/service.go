// Package session issues and verifies the wallet-scoped bearer tokens
// that authenticate cart requests.
package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gu-corp/nft-cart-backend/pkg/config"
	pkgerrors "github.com/gu-corp/nft-cart-backend/pkg/errors"
	"github.com/gu-corp/nft-cart-backend/pkg/eth"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
)

// Session is an issued wallet session.
type Session struct {
	Token     string
	Wallet    string
	ExpiresAt time.Time
}

// Service mints and verifies wallet session tokens.
type Service interface {
	Issue(ctx context.Context, wallet string) (*Session, error)
	Verify(ctx context.Context, token string) (string, error)
}

type service struct {
	cfg  config.JWTConfig
	logg *logger.Logger
}

func NewService(cfg config.JWTConfig, logg *logger.Logger) (Service, error) {
	if cfg.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "jwt secret is required")
	}
	return &service{cfg: cfg, logg: logg}, nil
}

type walletClaims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// Issue mints an HS256 session token bound to the wallet address.
func (s *service) Issue(ctx context.Context, wallet string) (*Session, error) {
	if !eth.IsHexAddress(wallet) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet address")
	}
	normalized := eth.Normalize(wallet)

	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.SessionTTL())
	claims := walletClaims{
		Wallet: normalized,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   normalized,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "signing session token")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithWallet(ctx, normalized), "wallet session issued")
	}
	return &Session{Token: signed, Wallet: normalized, ExpiresAt: expiresAt}, nil
}

// Verify validates the token and returns the wallet it was issued for.
func (s *service) Verify(_ context.Context, raw string) (string, error) {
	claims := &walletClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unexpected signing method")
		}
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid session token")
	}
	wallet := claims.Wallet
	if wallet == "" {
		wallet = claims.Subject
	}
	if !eth.IsHexAddress(wallet) {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "session token missing wallet")
	}
	return eth.Normalize(wallet), nil
}
