package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records cart operation outcomes.
type CartMetrics struct {
	operations       *prometheus.CounterVec
	validateDuration prometheus.Histogram
	itemsRemoved     prometheus.Counter
	checkouts        *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart store operations by name and result.",
	}, []string{"operation", "result"})
	validateDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_validate_duration_seconds",
		Help:    "Duration of cart reconciliation passes in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	itemsRemoved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_validate_items_removed_total",
		Help: "Items dropped by reconciliation (delisted or owned).",
	})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_checkouts_total",
		Help: "Checkout attempts by terminal status.",
	}, []string{"status"})
	reg.MustRegister(operations, validateDuration, itemsRemoved, checkouts)
	return &CartMetrics{
		operations:       operations,
		validateDuration: validateDuration,
		itemsRemoved:     itemsRemoved,
		checkouts:        checkouts,
	}
}

// IncOperation counts a store operation with its result label.
func (m *CartMetrics) IncOperation(operation, result string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

// ObserveValidateDuration records how long a reconciliation pass took.
func (m *CartMetrics) ObserveValidateDuration(duration time.Duration) {
	if m == nil || m.validateDuration == nil {
		return
	}
	m.validateDuration.Observe(duration.Seconds())
}

// AddItemsRemoved counts items dropped during reconciliation.
func (m *CartMetrics) AddItemsRemoved(count int) {
	if m == nil || m.itemsRemoved == nil || count <= 0 {
		return
	}
	m.itemsRemoved.Add(float64(count))
}

// IncCheckout counts a checkout attempt by its terminal status.
func (m *CartMetrics) IncCheckout(status string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(status)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
