package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain/prescription"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

const dateLayout = "2006-01-02"

// PrescriptionService creates and lists prescriptions.
type PrescriptionService interface {
	Create(ctx context.Context, req prescription.Request) (*prescription.Prescription, error)
	List(ctx context.Context) ([]prescription.Listing, error)
}

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	responder
	svc PrescriptionService
}

// NewPrescriptionHandler creates a new handler
func NewPrescriptionHandler(svc PrescriptionService, logger *zap.Logger, m *metrics.Metrics) *PrescriptionHandler {
	return &PrescriptionHandler{responder: newResponder(logger, m), svc: svc}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	return r
}

// CreatePrescriptionRequest carries ids taken from the picker options.
type CreatePrescriptionRequest struct {
	PatientID    int64  `json:"patient_id"`
	DoctorID     int64  `json:"doctor_id"`
	MedicationID int64  `json:"medication_id"`
	Dosage       string `json:"dosage"`
}

// CreatePrescriptionResponse is the response for creating a prescription
type CreatePrescriptionResponse struct {
	ID   int64  `json:"id"`
	Date string `json:"date"`
}

// PrescriptionRow is one line of the prescription list.
type PrescriptionRow struct {
	ID             int64  `json:"id"`
	PatientName    string `json:"patient_name"`
	DoctorName     string `json:"doctor_name"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Date           string `json:"date"`
}

// Create handles POST /prescriptions
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if err := decode(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	p, err := h.svc.Create(r.Context(), prescription.Request{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		MedicationID: req.MedicationID,
		Dosage:       req.Dosage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int64("prescription_id", p.ID))
	h.count(func(m *metrics.Metrics) { m.PrescriptionsCreated.Inc() })
	h.json(w, http.StatusCreated, CreatePrescriptionResponse{
		ID:   p.ID,
		Date: p.Date.Format(dateLayout),
	})
}

// List handles GET /prescriptions, most recent first.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rows := make([]PrescriptionRow, 0, len(listing))
	for _, l := range listing {
		rows = append(rows, PrescriptionRow{
			ID:             l.ID,
			PatientName:    l.PatientName,
			DoctorName:     l.DoctorName,
			MedicationName: l.MedicationName,
			Dosage:         l.Dosage,
			Date:           l.Date.Format(dateLayout),
		})
	}
	h.json(w, http.StatusOK, rows)
}
