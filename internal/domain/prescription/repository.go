package prescription

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/domain"
	"github.com/drfirst/go-clinicrx/internal/infrastructure/postgres"
)

// createdData is the outbox payload; prescription_id and
// prescription_date are merged in by SQL.
type createdData struct {
	PatientID    int64  `json:"patient_id"`
	DoctorID     int64  `json:"doctor_id"`
	MedicationID int64  `json:"medication_id"`
	Dosage       string `json:"dosage"`
}

const insertPrescription = `
	WITH inserted AS (
		INSERT INTO prescription (patient_id, doctor_id, medication_id, dosage)
		VALUES ($1, $2, $3, $4)
		RETURNING prescription_id, prescription_date
	), queued AS (
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, kafka_topic, kafka_key)
		SELECT prescription_id::text, 'Prescription', $5,
		       $6::jsonb || jsonb_build_object(
		           'prescription_id', prescription_id,
		           'prescription_date', prescription_date),
		       $7, 'prescription-' || prescription_id
		FROM inserted
	)
	SELECT prescription_id, prescription_date FROM inserted
`

// Same-day rows are ordered by id so later inserts still list first.
const listPrescriptions = `
	SELECT pr.prescription_id, p.name, d.name, m.name, pr.dosage, pr.prescription_date
	FROM prescription pr
	JOIN patient p    ON pr.patient_id = p.patient_id
	JOIN doctor d     ON pr.doctor_id = d.doctor_id
	JOIN medication m ON pr.medication_id = m.medication_id
	ORDER BY pr.prescription_date DESC, pr.prescription_id DESC
`

// Repository is the PostgreSQL Store.
type Repository struct {
	db     postgres.DB
	logger *zap.Logger
}

// NewRepository creates a repository over the shared handle.
func NewRepository(db postgres.DB, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger}
}

// Insert stores p and its outbox event in one statement. A foreign-key
// violation means a selected id does not exist and is reported as
// domain.ErrReferenceSelection.
func (r *Repository) Insert(ctx context.Context, p *Prescription) error {
	_, payload, err := domain.NewEvent(domain.EventPrescriptionCreated, createdData{
		PatientID:    p.PatientID,
		DoctorID:     p.DoctorID,
		MedicationID: p.MedicationID,
		Dosage:       p.Dosage,
	})
	if err != nil {
		return err
	}

	var date time.Time
	err = r.db.QueryRow(ctx, insertPrescription,
		p.PatientID, p.DoctorID, p.MedicationID, p.Dosage,
		string(domain.EventPrescriptionCreated), string(payload), domain.TopicPrescriptions,
	).Scan(&p.ID, &date)
	if err != nil {
		serr := domain.NewStorageError("insert prescription", err)
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %w", domain.ErrReferenceSelection, serr)
		}
		r.logger.Error("prescription insert failed", zap.Error(err))
		return serr
	}
	p.Date = date
	return nil
}

// List runs the joined listing query.
func (r *Repository) List(ctx context.Context) ([]Listing, error) {
	rows, err := r.db.Query(ctx, listPrescriptions)
	if err != nil {
		r.logger.Error("prescription list failed", zap.Error(err))
		return nil, domain.NewStorageError("list prescriptions", err)
	}
	defer rows.Close()

	out := []Listing{}
	for rows.Next() {
		var l Listing
		if err := rows.Scan(&l.ID, &l.PatientName, &l.DoctorName, &l.MedicationName, &l.Dosage, &l.Date); err != nil {
			return nil, domain.NewStorageError("scan prescription", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list prescriptions", err)
	}
	return out, nil
}
