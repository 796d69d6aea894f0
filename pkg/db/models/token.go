package models

import (
	"time"
)

// Token mirrors one indexed NFT. Rows are fed by the chain indexer; the
// cart service only ever reads them.
type Token struct {
	Contract  string    `gorm:"column:contract;primaryKey;size:64"`
	TokenID   string    `gorm:"column:token_id;primaryKey;size:128"`
	ChainID   int       `gorm:"column:chain_id;not null"`
	Name      string    `gorm:"column:name"`
	ImageURL  *string   `gorm:"column:image_url"`
	Owner     string    `gorm:"column:owner;not null;size:64;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Asks []Ask `gorm:"foreignKey:Contract,TokenID;references:Contract,TokenID"`
}

// TableName implements the GORM naming override.
func (Token) TableName() string {
	return "tokens"
}
