// Package metrics holds the Prometheus collectors of the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics is the set of server collectors, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RPCDuration    *prometheus.HistogramVec
	SessionLoads   *prometheus.CounterVec
	SessionSaves   *prometheus.CounterVec
	Notifications  prometheus.Counter
	ActiveWatchers prometheus.Gauge
	Extractions    *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabsplit_rpc_duration_seconds",
			Help:    "Duration of Connect RPCs by procedure and code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure", "code"}),
		SessionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsplit_session_loads_total",
			Help: "Session documents read, by result.",
		}, []string{"result"}),
		SessionSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsplit_session_saves_total",
			Help: "Session documents written, by result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabsplit_session_notifications_total",
			Help: "Session documents pushed to watchers.",
		}),
		ActiveWatchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabsplit_session_watchers",
			Help: "Open WatchSession streams.",
		}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabsplit_receipt_extractions_total",
			Help: "Receipt extractions, by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RPCDuration,
		m.SessionLoads,
		m.SessionSaves,
		m.Notifications,
		m.ActiveWatchers,
		m.Extractions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
