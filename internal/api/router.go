// Package api assembles the clinic HTTP surface.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/api/handlers"
	"github.com/drfirst/go-clinicrx/internal/api/middleware"
	"github.com/drfirst/go-clinicrx/internal/domain/reference"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

// ServiceName labels spans and the health body.
const ServiceName = "clinic-api"

// Pinger reports storage reachability for /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the router serves.
type Deps struct {
	Patients      handlers.PatientAdder
	Options       handlers.OptionLister
	Prescriptions handlers.PrescriptionService
	Storage       Pinger
	APIKeys       map[string]string
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

// NewRouter wires middleware, health endpoints and the /api/v1 routes.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing(ServiceName))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}

	r.Get("/health", healthHandler)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Storage.Ping(r.Context()); err != nil {
			logger.Warn("readiness check failed", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(d.APIKeys))
		r.Mount("/patients", handlers.NewPatientHandler(d.Patients, d.Options, logger, d.Metrics).Routes())
		r.Mount("/doctors", handlers.NewReferenceHandler(reference.KindDoctor, d.Options, logger, d.Metrics).Routes())
		r.Mount("/medications", handlers.NewReferenceHandler(reference.KindMedication, d.Options, logger, d.Metrics).Routes())
		r.Mount("/prescriptions", handlers.NewPrescriptionHandler(d.Prescriptions, logger, d.Metrics).Routes())
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"` + ServiceName + `","version":"1.0.0"}`))
}
