// Package event defines the canonical envelope every aggregate appends to
// the event store and every projection/choreography consumer receives off
// the bus.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Metadata travels with every event in addition to its typed payload.
type Metadata struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	Stored        time.Time `json:"stored"`
}

// Envelope is the canonical on-the-wire and on-disk event shape.
type Envelope struct {
	AggregateID   uuid.UUID       `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	Version       int             `json:"version"`
	GlobalVersion int64           `json:"globalVersion"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion int              `json:"schemaVersion"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      Metadata        `json:"metadata"`
}

// New builds an envelope for a not-yet-appended event. Version and
// GlobalVersion are assigned by the event store at append time.
func New(aggregateID uuid.UUID, aggregateType, eventType string, payload interface{}, correlationID uuid.UUID) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	if correlationID == uuid.Nil {
		correlationID = uuid.New()
	}
	return Envelope{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		SchemaVersion: 1,
		Timestamp:     time.Now().UTC(),
		Payload:       raw,
		Metadata:      Metadata{CorrelationID: correlationID},
	}, nil
}

// Decode unmarshals the envelope's payload into dst.
func (e Envelope) Decode(dst interface{}) error {
	return json.Unmarshal(e.Payload, dst)
}
