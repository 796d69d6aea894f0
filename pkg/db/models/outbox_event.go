package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gu-corp/nft-cart-backend/pkg/enums"
)

// OutboxEvent is one row of the transactional outbox drained by the
// publisher binary.
type OutboxEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType `gorm:"column:event_type;not null;index"`
	AggregateType string                `gorm:"column:aggregate_type;not null"`
	AggregateID   string                `gorm:"column:aggregate_id;not null;index"`
	Payload       json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	Attempts      int                   `gorm:"column:attempts;not null;default:0"`
	PublishedAt   *time.Time            `gorm:"column:published_at;index"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements the GORM naming override.
func (OutboxEvent) TableName() string {
	return "outbox_events"
}
