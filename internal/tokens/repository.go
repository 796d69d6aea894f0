package tokens

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gu-corp/nft-cart-backend/pkg/db/models"
	"github.com/gu-corp/nft-cart-backend/pkg/enums"
)

// Repository reads the indexed tokens and asks. The index is written by
// the chain indexer; this service never mutates it.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindToken loads a token row without its asks. Returns (nil, nil) when
// the token is not indexed.
func (r *Repository) FindToken(ctx context.Context, contract, tokenID string) (*models.Token, error) {
	var token models.Token
	err := r.db.WithContext(ctx).
		Where("contract = ? AND token_id = ?", strings.ToLower(contract), tokenID).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// ActiveAsks returns the live, unexpired asks for a token ordered by
// ascending price text length then price, which sorts decimal strings
// numerically.
func (r *Repository) ActiveAsks(ctx context.Context, contract, tokenID string) ([]models.Ask, error) {
	var asks []models.Ask
	err := r.db.WithContext(ctx).
		Where("contract = ? AND token_id = ? AND status = ?",
			strings.ToLower(contract), tokenID, enums.AskStatusActive).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Order("length(price) asc, price asc").
		Find(&asks).Error
	return asks, err
}
