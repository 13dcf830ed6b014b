// Package reference provides read-only lookup lists for the selection
// widgets: patients, doctors and medications.
package reference

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain"
	"github.com/drfirst/go-clinicrx/internal/infrastructure/postgres"
)

// Option is an (id, label) pair handed to the presentation layer and handed
// back on submission. The id is never recovered from the label.
type Option struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Kind names one of the three lookup tables.
type Kind string

const (
	KindPatient    Kind = "patient"
	KindDoctor     Kind = "doctor"
	KindMedication Kind = "medication"
)

// Table and id column are fixed per kind; never built from input.
var queries = map[Kind]string{
	KindPatient:    `SELECT patient_id, name FROM patient`,
	KindDoctor:     `SELECT doctor_id, name FROM doctor`,
	KindMedication: `SELECT medication_id, name FROM medication`,
}

// Store reads lookup lists. Each call is a fresh snapshot in storage order.
type Store struct {
	db     postgres.DB
	logger *zap.Logger
	tracer trace.Tracer
}

// NewStore creates a reference store over the shared handle.
func NewStore(db postgres.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger, tracer: otel.Tracer("reference-store")}
}

// Patients lists every patient as an Option.
func (s *Store) Patients(ctx context.Context) ([]Option, error) {
	return s.List(ctx, KindPatient)
}

// Doctors lists every doctor as an Option.
func (s *Store) Doctors(ctx context.Context) ([]Option, error) {
	return s.List(ctx, KindDoctor)
}

// Medications lists every medication as an Option.
func (s *Store) Medications(ctx context.Context) ([]Option, error) {
	return s.List(ctx, KindMedication)
}

// List returns the options of one kind. Unknown kinds are a reference
// selection error.
func (s *Store) List(ctx context.Context, kind Kind) ([]Option, error) {
	q, ok := queries[kind]
	if !ok {
		return nil, domain.ErrReferenceSelection
	}

	ctx, span := s.tracer.Start(ctx, "reference_list",
		trace.WithAttributes(attribute.String("kind", string(kind))))
	defer span.End()

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("reference lookup failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, domain.NewStorageError("list "+string(kind), err)
	}
	defer rows.Close()

	out := []Option{}
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.Label); err != nil {
			return nil, domain.NewStorageError("scan "+string(kind), err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list "+string(kind), err)
	}
	return out, nil
}
