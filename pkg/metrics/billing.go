package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks checkout and webhook outcomes.
type BillingMetrics struct {
	checkouts      *prometheus.CounterVec
	gatewayLatency prometheus.Histogram
	webhooks       *prometheus.CounterVec
	outboxEvents   *prometheus.CounterVec
}

// NewBillingMetrics registers the billing collectors on reg. A nil registerer
// yields a no-op recorder.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salymed_checkout_attempts_total",
		Help: "Checkout attempts by outcome reason.",
	}, []string{"outcome"})
	gatewayLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "salymed_paddle_request_duration_seconds",
		Help:    "Latency of Paddle transaction creation.",
		Buckets: prometheus.DefBuckets,
	})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salymed_webhook_events_total",
		Help: "Paddle webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	outboxEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "salymed_outbox_publish_total",
		Help: "Outbox publish attempts by result.",
	}, []string{"result"})
	reg.MustRegister(checkouts, gatewayLatency, webhooks, outboxEvents)
	return &BillingMetrics{
		checkouts:      checkouts,
		gatewayLatency: gatewayLatency,
		webhooks:       webhooks,
		outboxEvents:   outboxEvents,
	}
}

// IncCheckout counts a checkout attempt; outcome is "created" or a rejection reason.
func (m *BillingMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGateway records one Paddle call duration.
func (m *BillingMetrics) ObserveGateway(duration time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.Observe(duration.Seconds())
}

// IncWebhook counts one processed webhook delivery.
func (m *BillingMetrics) IncWebhook(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncOutbox counts one outbox publish attempt.
func (m *BillingMetrics) IncOutbox(result string) {
	if m == nil || m.outboxEvents == nil {
		return
	}
	m.outboxEvents.WithLabelValues(normalizeLabel(result)).Inc()
}
