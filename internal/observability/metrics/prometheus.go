// Package metrics provides Prometheus metrics for the clinic services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	PatientsRegistered   prometheus.Counter
	PrescriptionsCreated prometheus.Counter
	DosageBlocked        prometheus.Counter
	ReferenceRejected    prometheus.Counter
	StorageErrors        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	OutboxPendingEntries prometheus.Gauge
	OutboxPublished      prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
	BrokerMessages       *prometheus.CounterVec
	BrokerBytes          *prometheus.CounterVec
	BrokerErrors         *prometheus.CounterVec
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PatientsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_patients_registered_total",
			Help: "Total patients registered",
		}),
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_prescriptions_created_total",
			Help: "Total prescriptions created",
		}),
		DosageBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_dosage_blocked_total",
			Help: "Prescriptions rejected by the dosage limit",
		}),
		ReferenceRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_reference_rejected_total",
			Help: "Prescriptions rejected for a missing or unknown patient, doctor or medication",
		}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_storage_errors_total",
			Help: "Storage failures by operation",
		}, []string{"op"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinic_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route", "status"}),
		OutboxPendingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox entries published to the broker",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BrokerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_messages_produced_total",
			Help: "Records acknowledged by the broker",
		}, []string{"topic"}),
		BrokerBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_bytes_produced_total",
			Help: "Record value bytes acknowledged by the broker",
		}, []string{"topic"}),
		BrokerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_produce_errors_total",
			Help: "Failed produce calls",
		}, []string{"topic"}),
	}

	reg.MustRegister(
		m.PatientsRegistered,
		m.PrescriptionsCreated,
		m.DosageBlocked,
		m.ReferenceRejected,
		m.StorageErrors,
		m.RequestDuration,
		m.OutboxPendingEntries,
		m.OutboxPublished,
		m.CircuitBreakerState,
		m.BrokerMessages,
		m.BrokerBytes,
		m.BrokerErrors,
	)

	return m
}

// OutboxPending records the latest pending count.
func (m *Metrics) OutboxPending(n int64) {
	m.OutboxPendingEntries.Set(float64(n))
}

// OutboxPublishedEntries adds n published entries.
func (m *Metrics) OutboxPublishedEntries(n int) {
	m.OutboxPublished.Add(float64(n))
}

// BreakerState records a breaker's state code.
func (m *Metrics) BreakerState(name string, code int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(code))
}

// MessageProduced counts one acknowledged record.
func (m *Metrics) MessageProduced(topic string, bytes int) {
	m.BrokerMessages.WithLabelValues(topic).Inc()
	m.BrokerBytes.WithLabelValues(topic).Add(float64(bytes))
}

// ProduceFailed counts one failed produce.
func (m *Metrics) ProduceFailed(topic string) {
	m.BrokerErrors.WithLabelValues(topic).Inc()
}

// Handler returns the HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
