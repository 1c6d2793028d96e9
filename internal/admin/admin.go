// Package admin exposes the bridge daemon's operational surface: a
// liveness probe, Prometheus metrics, and a connection-accounting
// debug endpoint, as an ordinary chi-routed http.Handler the host
// binary serves on its own address (the bridge socket itself carries
// no HTTP/JSON admin traffic).
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hnolan/httpbridge/internal/metrics"
)

// ConnectionsInfo mirrors supervisor.ConnectionsInfo's shape for JSON
// encoding. Declared locally, rather than importing internal/supervisor,
// so the caller adapts with a plain conversion instead of this package
// depending on the supervisor's own type.
type ConnectionsInfo struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Idle    int64 `json:"idle"`
	Closing int64 `json:"closing"`
}

// Server holds the admin router and its dependencies.
type Server struct {
	router   chi.Router
	reg      *metrics.Registry
	connInfo func() ConnectionsInfo
}

// New builds a Server, wires its routes, and returns it ready to use
// as an http.Handler. connInfo may be nil before the supervisor has
// started; /debug/connections reports zeros in that case.
func New(reg *metrics.Registry, connInfo func() ConnectionsInfo) *Server {
	s := &Server{reg: reg, connInfo: connInfo}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.reg.Gatherer(), promhttp.HandlerOpts{}))
	}
	r.Get("/debug/connections", s.handleDebugConnections)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleDebugConnections(w http.ResponseWriter, r *http.Request) {
	var info ConnectionsInfo
	if s.connInfo != nil {
		info = s.connInfo()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
