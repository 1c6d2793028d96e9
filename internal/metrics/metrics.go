// Package metrics exposes Prometheus counters and gauges for the
// bridge daemon's connection and frame accounting, served by
// internal/admin's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric the bridge daemon reports. Callers embed
// it rather than relying on the global default registerer, so more
// than one Supervisor can run in the same process in tests without
// a duplicate-registration panic.
type Registry struct {
	reg *prometheus.Registry

	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	FramesRead        *prometheus.CounterVec
	FramesWritten     *prometheus.CounterVec
	BytesRead         prometheus.Counter
	BytesWritten      prometheus.Counter
	RequestsTotal     *prometheus.CounterVec
	HandlerErrors     prometheus.Counter
	TunnelsActive     prometheus.Gauge
}

// New builds a Registry with its own prometheus.Registry, so its
// metrics can be scraped in isolation (e.g. in tests) without touching
// prometheus.DefaultRegisterer.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "httpbridge",
			Name:      "connections_total",
			Help:      "Total bridge connections accepted.",
		}),
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpbridge",
			Name:      "connections_active",
			Help:      "Bridge connections currently open.",
		}),
		FramesRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "httpbridge",
			Name:      "frames_read_total",
			Help:      "Frames read off the wire, by frame kind.",
		}, []string{"kind"}),
		FramesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "httpbridge",
			Name:      "frames_written_total",
			Help:      "Frames written to the wire, by frame kind.",
		}, []string{"kind"}),
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "httpbridge",
			Name:      "bytes_read_total",
			Help:      "Payload bytes read off the wire.",
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "httpbridge",
			Name:      "bytes_written_total",
			Help:      "Payload bytes written to the wire.",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "httpbridge",
			Name:      "requests_total",
			Help:      "Requests dispatched to the handler, by outcome.",
		}, []string{"outcome"}),
		HandlerErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "httpbridge",
			Name:      "handler_errors_total",
			Help:      "Requests that ended in a synthesized error response.",
		}),
		TunnelsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpbridge",
			Name:      "tunnels_active",
			Help:      "Detached tunnel sockets currently open.",
		}),
	}
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
