package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names an outbox event.
type EventType string

const (
	EventPatientRegistered   EventType = "PatientRegistered"
	EventPrescriptionCreated EventType = "PrescriptionCreated"
)

// Broker topics the outbox relay publishes to.
const (
	TopicPatients      = "clinic.patients"
	TopicPrescriptions = "clinic.prescriptions"
	TopicDeadLetter    = "clinic.dead-letter"
)

// Event is the envelope stored in outbox.payload. Fields generated by the
// database (row ids, dates) are merged into the JSON by the insert statement.
type Event struct {
	ID         string          `json:"event_id"`
	Type       EventType       `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an envelope around data and returns its JSON encoding.
func NewEvent(t EventType, data any) (*Event, []byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, nil, err
	}
	e := &Event{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, nil, err
	}
	return e, body, nil
}
