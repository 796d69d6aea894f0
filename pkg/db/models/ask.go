package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/gu-corp/nft-cart-backend/pkg/enums"
)

// Ask is an indexed on-chain sell order for a token. Price is the exact
// amount in the currency's smallest unit, stored as text to avoid any
// integer-width assumptions.
type Ask struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Contract  string          `gorm:"column:contract;not null;size:64;index:idx_asks_token"`
	TokenID   string          `gorm:"column:token_id;not null;size:128;index:idx_asks_token"`
	Signer    string          `gorm:"column:signer;not null;size:64"`
	Price     string          `gorm:"column:price;not null"`
	Currency  string          `gorm:"column:currency;not null;size:64"`
	Nonce     int64           `gorm:"column:nonce;not null"`
	Status    enums.AskStatus `gorm:"column:status;not null;default:'active';index"`
	ExpiresAt *time.Time      `gorm:"column:expires_at"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements the GORM naming override.
func (Ask) TableName() string {
	return "asks"
}
