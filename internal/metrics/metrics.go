// Package metrics holds the Prometheus collectors for tab lifecycle,
// geometry sync and the control API.
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

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Tab lifecycle
	TabsOpen     prometheus.Gauge
	TabOps       *prometheus.CounterVec
	TabOpSeconds *prometheus.HistogramVec

	// Geometry
	GeometryFlushes *prometheus.CounterVec

	// Events
	EventsDropped *prometheus.CounterVec
	SSEClients    prometheus.GaugeFunc

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry. clients reports the
// number of connected event streams.
func New(clients func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		TabsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabshell_tabs_open",
			Help: "Number of open tabs",
		}),
		TabOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabshell_tab_operations_total",
				Help: "Tab operations by kind and result",
			},
			[]string{"op", "result"},
		),
		TabOpSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabshell_tab_operation_duration_seconds",
				Help:    "Tab operation latency",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		GeometryFlushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabshell_geometry_flushes_total",
				Help: "Geometry flushes by outcome",
			},
			[]string{"outcome"},
		),
		EventsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabshell_events_dropped_total",
				Help: "Events not delivered to a slow subscriber",
			},
			[]string{"feed"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabshell_http_requests_total",
				Help: "Control API requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabshell_http_request_duration_seconds",
				Help:    "Control API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
	if clients != nil {
		m.SSEClients = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tabshell_event_stream_clients",
			Help: "Connected event stream clients",
		}, func() float64 { return float64(clients()) })
	}
	return m
}

// ObserveTabOp records one tab operation.
func (m *Metrics) ObserveTabOp(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TabOps.WithLabelValues(op, result).Inc()
	m.TabOpSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveRequest records one control API request.
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
