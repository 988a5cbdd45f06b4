// Package metrics exposes Prometheus metrics on a dedicated listener,
// separate from the API server so operational scraping never competes with
// authenticated traffic.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AccountOperations counts account operations by operation and outcome.
// Outcomes are the taxonomy the boundary maps to responses: ok, not_found,
// challenge, validation, conflict, fault. There is deliberately no
// per-failure-cause label beyond that; the metric must not become a side
// channel distinguishing failure causes the API hides.
var AccountOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "account_operations_total",
	Help: "Account operations by operation and outcome.",
}, []string{"operation", "outcome"})

// MetricsServer serves the Prometheus registry over HTTP.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. The name is kept for the
// server identity in logs.
func New(name, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
