// Package metrics exposes Prometheus counters for chat sessions and the relay.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/gochat/internal/config"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	sent             *prometheus.CounterVec
	received         *prometheus.CounterVec
	decodeErrors     prometheus.Counter
	rejectedSends    prometheus.Counter
	deliveryTimeouts prometheus.Counter
	pendingDelivery  prometheus.Gauge
	connectAttempts  prometheus.Counter
	connectionState  *prometheus.GaugeVec
	latency          prometheus.Histogram
	connectedClients prometheus.Gauge
	rateLimited      prometheus.Counter
}

// New creates and registers all collectors.
func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry:         r,
		sent:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "envelopes_sent_total"}, []string{"kind"}),
		received:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "envelopes_received_total"}, []string{"kind"}),
		decodeErrors:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "decode_errors_total"}),
		rejectedSends:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "rejected_sends_total"}),
		deliveryTimeouts: prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "delivery_timeouts_total"}),
		pendingDelivery:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "pending_deliveries"}),
		connectAttempts:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "connect_attempts_total"}),
		connectionState:  prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "connection_state"}, []string{"state"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "ping_latency_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "connected_clients"}),
		rateLimited:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "rate_limited_total"}),
	}
	r.MustRegister(m.sent, m.received, m.decodeErrors, m.rejectedSends, m.deliveryTimeouts,
		m.pendingDelivery, m.connectAttempts, m.connectionState, m.latency, m.connectedClients, m.rateLimited)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// EnvelopeSent counts an outbound envelope of the given kind.
func (m *Metrics) EnvelopeSent(kind string) {
	if m != nil {
		m.sent.WithLabelValues(kind).Inc()
	}
}

// EnvelopeReceived counts an inbound envelope of the given kind.
func (m *Metrics) EnvelopeReceived(kind string) {
	if m != nil {
		m.received.WithLabelValues(kind).Inc()
	}
}

// DecodeError counts a frame that could not be decoded.
func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

// SendRejected counts a send refused by the transport.
func (m *Metrics) SendRejected() {
	if m != nil {
		m.rejectedSends.Inc()
	}
}

// DeliveryTimeout counts a message whose echo never arrived.
func (m *Metrics) DeliveryTimeout() {
	if m != nil {
		m.deliveryTimeouts.Inc()
	}
}

// PendingDeliveries sets the number of unacknowledged messages.
func (m *Metrics) PendingDeliveries(n int) {
	if m != nil {
		m.pendingDelivery.Set(float64(n))
	}
}

// ConnectAttempt counts a dial.
func (m *Metrics) ConnectAttempt() {
	if m != nil {
		m.connectAttempts.Inc()
	}
}

// ConnectionState marks state as the only active state label.
func (m *Metrics) ConnectionState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

// Latency observes a completed ping round trip.
func (m *Metrics) Latency(d time.Duration) {
	if m != nil {
		m.latency.Observe(d.Seconds())
	}
}

// ClientConnected increments the relay connection gauge.
func (m *Metrics) ClientConnected() {
	if m != nil {
		m.connectedClients.Inc()
	}
}

// ClientDisconnected decrements the relay connection gauge.
func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.connectedClients.Dec()
	}
}

// RateLimited counts a frame discarded by the relay rate limiter.
func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}
