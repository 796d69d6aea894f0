package enums

// OutboxEventType names the domain events the cart service emits.
type OutboxEventType string

const (
	OutboxEventCartItemsAdded       OutboxEventType = "cart.items_added"
	OutboxEventCartItemsRemoved     OutboxEventType = "cart.items_removed"
	OutboxEventCartCleared          OutboxEventType = "cart.cleared"
	OutboxEventCartCheckoutComplete OutboxEventType = "cart.checkout_completed"
)

// OutboxAggregateCart is the aggregate type stamped on cart events.
const OutboxAggregateCart = "cart"

// String implements fmt.Stringer.
func (t OutboxEventType) String() string {
	return string(t)
}
