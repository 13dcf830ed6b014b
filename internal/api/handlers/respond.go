// Package handlers provides HTTP handlers for the clinic API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/api/middleware"
	"github.com/drfirst/go-clinicrx/internal/domain"
	"github.com/drfirst/go-clinicrx/internal/domain/prescription"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Example string `json:"example,omitempty"`
}

// responder writes JSON bodies and maps domain errors to status codes.
type responder struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newResponder(logger *zap.Logger, m *metrics.Metrics) responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return responder{logger: logger, metrics: m}
}

func (h responder) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (h responder) badRequest(w http.ResponseWriter, msg string) {
	h.json(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}

// fail maps err to a response. Storage details are logged, never returned.
func (h responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDosageTooHigh):
		h.count(func(m *metrics.Metrics) { m.DosageBlocked.Inc() })
		h.json(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   err.Error(),
			Code:    "dosage_too_high",
			Example: prescription.DosageExample,
		})

	case errors.Is(err, domain.ErrReferenceSelection):
		h.count(func(m *metrics.Metrics) { m.ReferenceRejected.Inc() })
		// The wrapped storage detail is not for the client.
		h.logger.Info("reference selection rejected",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.json(w, http.StatusBadRequest, ErrorResponse{
			Error: "select a patient, doctor and medication from the lists",
			Code:  "reference_selection",
		})

	default:
		op := "unknown"
		var serr *domain.StorageError
		if errors.As(err, &serr) {
			op = serr.Op
		}
		h.count(func(m *metrics.Metrics) { m.StorageErrors.WithLabelValues(op).Inc() })
		h.logger.Error("request failed",
			zap.String("op", op),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.json(w, http.StatusInternalServerError, ErrorResponse{
			Error: "storage unavailable, please retry",
			Code:  "storage_error",
		})
	}
}

func (h responder) count(fn func(*metrics.Metrics)) {
	if h.metrics != nil {
		fn(h.metrics)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
