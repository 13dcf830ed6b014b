package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain/reference"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

// PatientAdder registers a patient.
type PatientAdder interface {
	Add(ctx context.Context, name, phone, email string) (int64, error)
}

// PatientHandler registers patients and lists them for the picker.
type PatientHandler struct {
	ReferenceHandler
	registry PatientAdder
}

// NewPatientHandler creates a new handler
func NewPatientHandler(registry PatientAdder, options OptionLister, logger *zap.Logger, m *metrics.Metrics) *PatientHandler {
	return &PatientHandler{
		ReferenceHandler: *NewReferenceHandler(reference.KindPatient, options, logger, m),
		registry:         registry,
	}
}

// Routes returns the handler routes
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	return r
}

// CreatePatientRequest is the registration form. Fields are stored as typed.
type CreatePatientRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// CreatePatientResponse carries the new id so the client can refresh its
// patient picker.
type CreatePatientResponse struct {
	ID int64 `json:"id"`
}

// Create handles POST /patients
func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := decode(w, r, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	id, err := h.registry.Add(r.Context(), req.Name, req.Phone, req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.count(func(m *metrics.Metrics) { m.PatientsRegistered.Inc() })
	h.json(w, http.StatusCreated, CreatePatientResponse{ID: id})
}
