// Package telemetry holds Prometheus metrics for business-level
// observability of the cart and checkout funnel.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BusinessMetrics holds Prometheus metrics for business-level observability.
// Constructed once in main and injected into services; no package globals.
type BusinessMetrics struct {
	// Cart
	CartsCreated   prometheus.Counter
	CartUpdates    *prometheus.CounterVec // labels: operation (add/update/remove/clear)
	CartsMerged    prometheus.Counter
	ItemsPruned    prometheus.Counter
	CartValue      prometheus.Histogram
	WriteConflicts prometheus.Counter

	// Checkout funnel
	ValidationFailed       prometheus.Counter
	ReservationsStarted    prometheus.Counter
	ReservationsFailed     prometheus.Counter
	ReservationsRolledBack prometheus.Counter

	// ReleaseFailures counts inventory that could not be re-incremented
	// after a failed payment. Every increment here is phantom stock
	// shortage until an operator reconciles it.
	ReleaseFailures prometheus.Counter

	// Webhooks
	WebhookReceived *prometheus.CounterVec // labels: event_type
	WebhookLatency  *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers the business metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in main.
func NewBusinessMetrics(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "vagn"
	}

	m := &BusinessMetrics{
		CartsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carts_created_total",
			Help:      "Total number of carts lazily created on first access",
		}),
		CartUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_updates_total",
			Help:      "Total cart mutations by operation",
		}, []string{"operation"}),
		CartsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carts_merged_total",
			Help:      "Total guest carts merged into user carts on login",
		}),
		ItemsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_items_pruned_total",
			Help:      "Line items dropped because their product vanished or went inactive",
		}),
		CartValue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_value_cents",
			Help:      "Cart subtotal after mutation, in cents",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}),
		WriteConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_write_conflicts_total",
			Help:      "Optimistic-concurrency conflicts on cart writes (retried)",
		}),
		ValidationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_validation_failed_total",
			Help:      "Checkout validations that reported one or more violations",
		}),
		ReservationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_reservations_total",
			Help:      "Inventory reservation attempts",
		}),
		ReservationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_reservations_failed_total",
			Help:      "Reservation attempts that lost the conditional decrement race",
		}),
		ReservationsRolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_reservations_rolled_back_total",
			Help:      "Partial reservations compensated after a mid-flight failure",
		}),
		ReleaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_release_failures_total",
			Help:      "Inventory increments that failed during release (phantom stock shortage)",
		}),
		WebhookReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_received_total",
			Help:      "Stripe webhook events received",
		}, []string{"event_type"}),
		WebhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_seconds",
			Help:      "Stripe webhook processing time in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"event_type"}),
	}

	reg.MustRegister(
		m.CartsCreated, m.CartUpdates, m.CartsMerged, m.ItemsPruned,
		m.CartValue, m.WriteConflicts,
		m.ValidationFailed, m.ReservationsStarted, m.ReservationsFailed,
		m.ReservationsRolledBack, m.ReleaseFailures,
		m.WebhookReceived, m.WebhookLatency,
	)

	return m
}
