package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestsTotal and errorsTotal back the /metrics endpoint exposed when
// GRAPHKB_METRICS_ENABLED=true, per SPEC_FULL.md §6.4's domain stack
// wiring table entry for github.com/prometheus/client_golang.
var (
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphkb_http_requests_total",
		Help: "Total HTTP requests served by the graphkb server.",
	})
	errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "graphkb_http_errors_total",
		Help: "Total HTTP requests that resulted in an error response.",
	})
)

func (s *Server) metricsHandler() http.Handler {
	return promhttp.Handler()
}
