package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain/reference"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
)

// OptionLister reads one lookup list.
type OptionLister interface {
	List(ctx context.Context, kind reference.Kind) ([]reference.Option, error)
}

// ReferenceHandler serves a read-only picker list.
type ReferenceHandler struct {
	responder
	kind    reference.Kind
	options OptionLister
}

// NewReferenceHandler serves the kind list from options.
func NewReferenceHandler(kind reference.Kind, options OptionLister, logger *zap.Logger, m *metrics.Metrics) *ReferenceHandler {
	return &ReferenceHandler{responder: newResponder(logger, m), kind: kind, options: options}
}

// Routes returns the handler routes
func (h *ReferenceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	return r
}

// List handles GET on the list root.
func (h *ReferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := h.options.List(r.Context(), h.kind)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, opts)
}
