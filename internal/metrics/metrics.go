// Package metrics exposes Prometheus instrumentation for PetCare Core.
//
// Metrics Categories:
//   - WebSocket: open connections, events broadcast, deliveries, drops
//   - Change streams: events observed and errors per stream
//   - Initial data: primary, fallback and failed responses
//   - Telemetry: readings ingested and rejected per source
//   - HTTP: request count and latency per route
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "petcare"

// Initial data outcomes.
const (
	InitialDataOK       = "ok"
	InitialDataFallback = "fallback"
	InitialDataFailed   = "failed"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	wsConnections      prometheus.Gauge
	eventsBroadcast    *prometheus.CounterVec
	messagesDelivered  prometheus.Counter
	messagesDropped    prometheus.Counter
	inboundRateLimited prometheus.Counter

	changeStreamEvents *prometheus.CounterVec
	changeStreamErrors *prometheus.CounterVec

	initialData *prometheus.CounterVec

	readingsIngested *prometheus.CounterVec
	readingsRejected *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Currently registered WebSocket connections",
		}),
		eventsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Outbound events broadcast, by message name",
		}, []string{"event"}),
		messagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_delivered_total",
			Help:      "Messages queued on a connection's send buffer",
		}),
		messagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_dropped_total",
			Help:      "Messages dropped because a connection buffer was full or closed",
		}),
		inboundRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_inbound_rate_limited_total",
			Help:      "Inbound client messages rejected by the per-connection rate limit",
		}),
		changeStreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_stream_events_total",
			Help:      "Change events observed, by stream",
		}, []string{"stream"}),
		changeStreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_stream_errors_total",
			Help:      "Change stream failures, by stream",
		}, []string{"stream"}),
		initialData: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "initial_data_requests_total",
			Help:      "Initial data requests, by outcome",
		}, []string{"outcome"}),
		readingsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Sensor readings stored, by source",
		}, []string{"source"}),
		readingsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Sensor readings rejected, by source",
		}, []string{"source"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ConnectionOpened increments the open connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// EventBroadcast records one broadcast and its per-connection outcomes.
func (m *Metrics) EventBroadcast(event string, delivered, dropped int) {
	if m == nil {
		return
	}
	m.eventsBroadcast.WithLabelValues(event).Inc()
	m.messagesDelivered.Add(float64(delivered))
	m.messagesDropped.Add(float64(dropped))
}

// InboundRateLimited records a rejected client message.
func (m *Metrics) InboundRateLimited() {
	if m == nil {
		return
	}
	m.inboundRateLimited.Inc()
}

// ChangeStreamEvent records one observed change on a stream.
func (m *Metrics) ChangeStreamEvent(stream string) {
	if m == nil {
		return
	}
	m.changeStreamEvents.WithLabelValues(stream).Inc()
}

// ChangeStreamError records a stream failure.
func (m *Metrics) ChangeStreamError(stream string) {
	if m == nil {
		return
	}
	m.changeStreamErrors.WithLabelValues(stream).Inc()
}

// InitialData records an initial data outcome (InitialDataOK, ...).
func (m *Metrics) InitialData(outcome string) {
	if m == nil {
		return
	}
	m.initialData.WithLabelValues(outcome).Inc()
}

// ReadingIngested records a stored reading.
func (m *Metrics) ReadingIngested(source string) {
	if m == nil {
		return
	}
	m.readingsIngested.WithLabelValues(source).Inc()
}

// ReadingRejected records a reading that failed decoding, validation or storage.
func (m *Metrics) ReadingRejected(source string) {
	if m == nil {
		return
	}
	m.readingsRejected.WithLabelValues(source).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
