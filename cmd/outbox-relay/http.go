package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 2 * time.Second

// newRelayRouter serves liveness, readiness against the database and the
// broker, and the metrics registry.
func newRelayRouter(g prometheus.Gatherer, database, broker Pinger, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"` + serviceName + `"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for name, p := range map[string]Pinger{"database": database, "broker": broker} {
			if err := p.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler(g))

	return r
}
