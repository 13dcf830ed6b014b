// Package prescription implements prescription creation behind the
// dosage-safety gate and the joined prescription listing.
package prescription

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain"
)

// Request is a submitted prescription form. The ids come from
// reference.Option values chosen by the user.
type Request struct {
	PatientID    int64
	DoctorID     int64
	MedicationID int64
	Dosage       string
}

// Prescription is a stored prescription. Date is assigned by the database.
type Prescription struct {
	ID           int64
	PatientID    int64
	DoctorID     int64
	MedicationID int64
	Dosage       string
	Date         time.Time
}

// Listing is one row of the joined prescription view.
type Listing struct {
	ID             int64
	PatientName    string
	DoctorName     string
	MedicationName string
	Dosage         string
	Date           time.Time
}

// Store persists and lists prescriptions.
type Store interface {
	// Insert sets p.ID and p.Date from the stored row.
	Insert(ctx context.Context, p *Prescription) error
	// List returns every prescription, newest date first.
	List(ctx context.Context) ([]Listing, error)
}

// Workflow validates and records prescriptions.
type Workflow struct {
	store  Store
	logger *zap.Logger
	tracer trace.Tracer
}

// NewWorkflow creates a workflow over store.
func NewWorkflow(store Store, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{store: store, logger: logger, tracer: otel.Tracer("prescription-workflow")}
}

// Create checks the reference ids and the dosage, then stores the
// prescription. A blocked dosage writes nothing.
func (w *Workflow) Create(ctx context.Context, req Request) (*Prescription, error) {
	ctx, span := w.tracer.Start(ctx, "prescription_create")
	defer span.End()

	if err := checkSelection(req); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := CheckDosage(req.Dosage); err != nil {
		span.SetAttributes(attribute.Bool("dosage_blocked", true))
		w.logger.Info("dosage blocked",
			zap.Int64("patient_id", req.PatientID),
			zap.Int64("medication_id", req.MedicationID),
			zap.String("dosage", req.Dosage))
		return nil, err
	}

	p := &Prescription{
		PatientID:    req.PatientID,
		DoctorID:     req.DoctorID,
		MedicationID: req.MedicationID,
		Dosage:       req.Dosage,
	}
	if err := w.store.Insert(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("prescription_id", p.ID))
	w.logger.Info("prescription created",
		zap.Int64("prescription_id", p.ID),
		zap.Int64("patient_id", p.PatientID),
		zap.Int64("doctor_id", p.DoctorID),
		zap.Int64("medication_id", p.MedicationID))
	return p, nil
}

// List returns the joined prescription view, most recent first.
func (w *Workflow) List(ctx context.Context) ([]Listing, error) {
	ctx, span := w.tracer.Start(ctx, "prescription_list")
	defer span.End()

	rows, err := w.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

func checkSelection(req Request) error {
	switch {
	case req.PatientID <= 0:
		return fmt.Errorf("%w: patient id %d", domain.ErrReferenceSelection, req.PatientID)
	case req.DoctorID <= 0:
		return fmt.Errorf("%w: doctor id %d", domain.ErrReferenceSelection, req.DoctorID)
	case req.MedicationID <= 0:
		return fmt.Errorf("%w: medication id %d", domain.ErrReferenceSelection, req.MedicationID)
	}
	return nil
}
