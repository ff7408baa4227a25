// Package observability holds the process logger and Prometheus collectors
// shared by the stores, the realtime bridge and the backend client.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the telecare collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	mutations       *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	hydrations      *prometheus.CounterVec
	realtimeEvents  *prometheus.CounterVec
	backendCalls    *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_store_mutations_total",
			Help: "State transitions applied to a persistent store.",
		}, []string{"key"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_store_persist_failures_total",
			Help: "Snapshot writes that failed and were swallowed.",
		}, []string{"key"}),
		hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_store_hydrations_total",
			Help: "Store hydrations by outcome.",
		}, []string{"key", "outcome"}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_realtime_events_total",
			Help: "Change events received by the realtime bridge.",
		}, []string{"table", "action", "result"}),
		backendCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telecare_backend_call_duration_seconds",
			Help:    "Latency of backend RPC calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	m.registry.MustRegister(
		m.mutations, m.persistFailures, m.hydrations, m.realtimeEvents, m.backendCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// StoreMutated counts a store transition.
func (m *Metrics) StoreMutated(key string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(key).Inc()
}

// StorePersistFailed counts a swallowed write failure.
func (m *Metrics) StorePersistFailed(key string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(key).Inc()
}

// StoreHydrated counts a hydration by outcome.
func (m *Metrics) StoreHydrated(key, outcome string) {
	if m == nil {
		return
	}
	m.hydrations.WithLabelValues(key, outcome).Inc()
}

// RealtimeEvent counts a change event and how the bridge handled it.
func (m *Metrics) RealtimeEvent(table, action, result string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(table, action, result).Inc()
}

// BackendCall observes a backend RPC duration.
func (m *Metrics) BackendCall(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(operation, status).Observe(d.Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
