package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhooksTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formerr_webhooks_triggered_total",
			Help: "Total webhook trigger calls by event type and aggregate status.",
		},
		[]string{"event_type", "status"}, // delivered, partial, failed, lookup_error
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formerr_webhook_deliveries_total",
			Help: "Total individual delivery attempts by outcome.",
		},
		[]string{"outcome"}, // delivered, rejected, timeout, network, unknown
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formerr_webhook_delivery_duration_seconds",
			Help:    "Latency of individual webhook delivery attempts.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	BookkeepingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formerr_webhook_bookkeeping_errors_total",
			Help: "Delivery outcome updates that failed to persist (logged and swallowed).",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(WebhooksTriggeredTotal, DeliveriesTotal, DeliveryDuration, BookkeepingErrorsTotal)
}

// RecordTriggered counts one trigger call and its aggregate result.
func RecordTriggered(eventType, status string) {
	WebhooksTriggeredTotal.WithLabelValues(eventType, status).Inc()
}

// RecordDelivery counts one delivery attempt and observes its latency.
func RecordDelivery(outcome string, elapsed time.Duration) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
	DeliveryDuration.Observe(elapsed.Seconds())
}

// RecordBookkeepingError counts a swallowed registry persistence failure.
func RecordBookkeepingError() {
	BookkeepingErrorsTotal.Inc()
}
