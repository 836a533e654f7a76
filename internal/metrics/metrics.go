// Package metrics provides prometheus collectors for webhook ingestion and
// push delivery. All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/imc400/shopify-market-place/internal/pkg/worker"
)

// Metrics holds the service collectors.
type Metrics struct {
	// Webhook events by topic and result (processed, failed, rejected).
	WebhookEvents *prometheus.CounterVec

	// End-to-end ingestion latency by topic.
	WebhookDuration *prometheus.HistogramVec

	// Delivery records written by status.
	Deliveries *prometheus.CounterVec

	// Per-token gateway verdicts (accepted, rejected, stale).
	GatewayTokens *prometheus.CounterVec

	// Duration of one gateway call by kind (single, multicast, topic).
	GatewayDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_webhook_events_total",
			Help: "Inbound webhook events by topic and result",
		}, []string{"topic", "result"}),

		WebhookDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_webhook_duration_seconds",
			Help:    "Duration of webhook ingestion including interpretation and fan-out",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"topic"}),

		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_notification_deliveries_total",
			Help: "Notification delivery records written by status",
		}, []string{"status"}),

		GatewayTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_gateway_tokens_total",
			Help: "Per-token push gateway results",
		}, []string{"result"}),

		GatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_gateway_call_duration_seconds",
			Help:    "Duration of push gateway calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
	}
}

// RegisterPools exposes worker pool occupancy as gauges.
func RegisterPools(reg prometheus.Registerer, pools *worker.Pools) {
	if pools == nil {
		return
	}
	for _, name := range []string{"general", "push"} {
		name := name
		promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "storefront_worker_pool_running",
			Help:        "Running goroutines per worker pool",
			ConstLabels: prometheus.Labels{"pool": name},
		}, func() float64 {
			return float64(pools.Stats()[name].Running)
		})
	}
}

// IncWebhookEvent records one ingestion result.
func (m *Metrics) IncWebhookEvent(topic, result string) {
	if m != nil {
		m.WebhookEvents.WithLabelValues(topic, result).Inc()
	}
}

// ObserveWebhook records ingestion latency.
func (m *Metrics) ObserveWebhook(topic string, d time.Duration) {
	if m != nil {
		m.WebhookDuration.WithLabelValues(topic).Observe(d.Seconds())
	}
}

// AddDeliveries records n delivery records written with status.
func (m *Metrics) AddDeliveries(status string, n int) {
	if m != nil && n > 0 {
		m.Deliveries.WithLabelValues(status).Add(float64(n))
	}
}

// AddGatewayTokens records n per-token results.
func (m *Metrics) AddGatewayTokens(result string, n int) {
	if m != nil && n > 0 {
		m.GatewayTokens.WithLabelValues(result).Add(float64(n))
	}
}

// ObserveGatewayCall records the duration of one gateway call.
func (m *Metrics) ObserveGatewayCall(kind string, d time.Duration) {
	if m != nil {
		m.GatewayDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}
