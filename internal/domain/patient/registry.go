// Package patient registers patients.
package patient

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain"
	"github.com/drfirst/go-clinicrx/internal/infrastructure/postgres"
)

// Patient is a registered patient. Rows are never updated or deleted.
type Patient struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// registeredData is the outbox payload; patient_id is merged in by SQL.
type registeredData struct {
	Name string `json:"name"`
}

// Name, phone and email are stored verbatim. Neither format nor uniqueness
// is checked, so duplicate registrations succeed.
const insertPatient = `
	WITH inserted AS (
		INSERT INTO patient (name, phone_number, email)
		VALUES ($1, $2, $3)
		RETURNING patient_id
	), queued AS (
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, kafka_topic, kafka_key)
		SELECT patient_id::text, 'Patient', $4,
		       $5::jsonb || jsonb_build_object('patient_id', patient_id),
		       $6, 'patient-' || patient_id
		FROM inserted
	)
	SELECT patient_id FROM inserted
`

// Registry creates patients.
type Registry struct {
	db     postgres.DB
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRegistry creates a registry over the shared handle.
func NewRegistry(db postgres.DB, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{db: db, logger: logger, tracer: otel.Tracer("patient-registry")}
}

// Add inserts one patient and returns the generated id.
func (r *Registry) Add(ctx context.Context, name, phone, email string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "patient_add")
	defer span.End()

	_, payload, err := domain.NewEvent(domain.EventPatientRegistered, registeredData{Name: name})
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRow(ctx, insertPatient,
		name, phone, email,
		string(domain.EventPatientRegistered), string(payload), domain.TopicPatients,
	).Scan(&id)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("patient insert failed", zap.Error(err))
		return 0, domain.NewStorageError("insert patient", err)
	}

	span.SetAttributes(attribute.Int64("patient_id", id))
	r.logger.Info("patient registered", zap.Int64("patient_id", id))
	return id, nil
}
