// Package metric exposes Prometheus instrumentation for the Woodchuck
// client library. Metrics are optional: a nil *Metrics is a valid
// receiver for every record helper, so instrumented code never has to
// check whether metrics were configured.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client-side collectors.
type Metrics struct {
	// RemoteCalls counts outbound method calls by method and outcome.
	RemoteCalls *prometheus.CounterVec

	// ProxyRebinds counts transparent rebind-and-retry cycles after a
	// ServiceUnknown fault.
	ProxyRebinds prometheus.Counter

	// PropertyCacheHits counts property reads served from the TTL cache.
	PropertyCacheHits prometheus.Counter

	// PropertyCacheMisses counts property reads that went to the daemon.
	PropertyCacheMisses prometheus.Counter

	// Upcalls counts inbound upcalls by kind and outcome. Outcome is
	// "accepted" or "rejected"; rejected means the sender was not the
	// tracked daemon.
	Upcalls *prometheus.CounterVec
}

// New creates the collector set. Call Register to attach it to a
// Prometheus registry.
func New() *Metrics {
	return &Metrics{
		RemoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "woodchuck",
				Subsystem: "client",
				Name:      "remote_calls_total",
				Help:      "Outbound DBus method calls",
			},
			[]string{"method", "status"},
		),
		ProxyRebinds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "woodchuck",
				Subsystem: "client",
				Name:      "proxy_rebinds_total",
				Help:      "Proxy rebinds after the daemon restarted under a new bus name",
			},
		),
		PropertyCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "woodchuck",
				Subsystem: "property_cache",
				Name:      "hits_total",
				Help:      "Property reads served from the TTL cache",
			},
		),
		PropertyCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "woodchuck",
				Subsystem: "property_cache",
				Name:      "misses_total",
				Help:      "Property reads that issued a remote Get",
			},
		),
		Upcalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "woodchuck",
				Subsystem: "upcall",
				Name:      "received_total",
				Help:      "Inbound upcalls by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.RemoteCalls,
		m.ProxyRebinds,
		m.PropertyCacheHits,
		m.PropertyCacheMisses,
		m.Upcalls,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordCall records one outbound call. status is "ok" or "fault".
func (m *Metrics) RecordCall(method, status string) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(method, status).Inc()
}

// RecordRebind records one rebind-and-retry cycle.
func (m *Metrics) RecordRebind() {
	if m == nil {
		return
	}
	m.ProxyRebinds.Inc()
}

// RecordCacheHit records a property read served locally.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.PropertyCacheHits.Inc()
}

// RecordCacheMiss records a property read that went to the daemon.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.PropertyCacheMisses.Inc()
}

// RecordUpcall records one inbound upcall.
func (m *Metrics) RecordUpcall(kind string, accepted bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.Upcalls.WithLabelValues(kind, outcome).Inc()
}
