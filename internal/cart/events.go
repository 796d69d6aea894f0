package cart

import (
	"context"

	"gorm.io/gorm"

	"github.com/gu-corp/nft-cart-backend/pkg/enums"
	"github.com/gu-corp/nft-cart-backend/pkg/logger"
	"github.com/gu-corp/nft-cart-backend/pkg/outbox"
)

// Events receives cart domain facts after a mutation committed. Event
// delivery is best effort and must never fail the cart operation.
type Events interface {
	ItemsAdded(ctx context.Context, wallet string, keys []string)
	ItemsRemoved(ctx context.Context, wallet string, keys []string)
	Cleared(ctx context.Context, wallet string)
	CheckoutCompleted(ctx context.Context, wallet, txHash string, keys []string, totalPrice string)
}

// NoopEvents discards all events.
type NoopEvents struct{}

func (NoopEvents) ItemsAdded(context.Context, string, []string)                     {}
func (NoopEvents) ItemsRemoved(context.Context, string, []string)                   {}
func (NoopEvents) Cleared(context.Context, string)                                  {}
func (NoopEvents) CheckoutCompleted(context.Context, string, string, []string, string) {}

type itemsAddedPayload struct {
	Keys []string `json:"keys"`
}

type itemsRemovedPayload struct {
	Keys []string `json:"keys"`
}

type checkoutCompletedPayload struct {
	TxHash     string   `json:"tx_hash"`
	Keys       []string `json:"keys"`
	TotalPrice string   `json:"total_price"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEvents records cart events through the transactional outbox so
// the publisher can drain them to Pub/Sub.
type OutboxEvents struct {
	db   txRunner
	svc  *outbox.Service
	logg *logger.Logger
}

func NewOutboxEvents(db txRunner, svc *outbox.Service, logg *logger.Logger) *OutboxEvents {
	return &OutboxEvents{db: db, svc: svc, logg: logg}
}

func (e *OutboxEvents) ItemsAdded(ctx context.Context, wallet string, keys []string) {
	e.emit(ctx, enums.OutboxEventCartItemsAdded, wallet, itemsAddedPayload{Keys: keys})
}

func (e *OutboxEvents) ItemsRemoved(ctx context.Context, wallet string, keys []string) {
	e.emit(ctx, enums.OutboxEventCartItemsRemoved, wallet, itemsRemovedPayload{Keys: keys})
}

func (e *OutboxEvents) Cleared(ctx context.Context, wallet string) {
	e.emit(ctx, enums.OutboxEventCartCleared, wallet, struct{}{})
}

func (e *OutboxEvents) CheckoutCompleted(ctx context.Context, wallet, txHash string, keys []string, totalPrice string) {
	e.emit(ctx, enums.OutboxEventCartCheckoutComplete, wallet, checkoutCompletedPayload{
		TxHash:     txHash,
		Keys:       keys,
		TotalPrice: totalPrice,
	})
}

func (e *OutboxEvents) emit(ctx context.Context, eventType enums.OutboxEventType, wallet string, data any) {
	if e == nil || e.db == nil || e.svc == nil {
		return
	}
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		return e.svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType: eventType,
			Wallet:    wallet,
			Data:      data,
			Version:   1,
		})
	})
	if err != nil && e.logg != nil {
		logCtx := e.logg.WithField(ctx, "event_type", eventType)
		e.logg.Error(logCtx, "recording cart event failed", err)
	}
}
