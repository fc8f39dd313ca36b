package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every series.
const Namespace = "switchboard"

// DefaultBuckets are the request latency buckets in seconds.
var DefaultBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

// Metrics groups the collectors of one server.
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	ConnectionsOpen  prometheus.Gauge
	DetectedTotal    *prometheus.CounterVec
	RejectedTotal    prometheus.Counter
	TransitionsTotal *prometheus.CounterVec
	HandoffsTotal    *prometheus.CounterVec
	FaultsTotal      *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),

		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections_open",
			Help:      "Number of connections being served",
		}),
		DetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_detected_total",
			Help:      "Connections whose protocol was detected",
		}, []string{"protocol"}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections closed because no protocol matched",
		}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "status_transitions_total",
			Help:      "Connection statuses reported by protocol handlers",
		}, []string{"protocol", "status"}),
		HandoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handoffs_total",
			Help:      "Connections handed from one protocol to another",
		}, []string{"from", "to"}),
		FaultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handler_faults_total",
			Help:      "Protocol handler errors and panics",
		}, []string{"protocol"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Requests that went through a middleware chain",
		}, []string{"protocol", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of requests in seconds",
			Buckets:   DefaultBuckets,
		}, []string{"protocol", "method", "status"}),
	}

	m.registry.MustRegister(
		m.ConnectionsOpen,
		m.DetectedTotal,
		m.RejectedTotal,
		m.TransitionsTotal,
		m.HandoffsTotal,
		m.FaultsTotal,
		m.RequestsTotal,
		m.RequestDuration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the metrics were created",
		}, func() float64 { return time.Since(m.started).Seconds() }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ConnOpened marks the start of a served connection.
func (m *Metrics) ConnOpened() { m.ConnectionsOpen.Inc() }

// ConnClosed marks the end of a served connection.
func (m *Metrics) ConnClosed() { m.ConnectionsOpen.Dec() }
