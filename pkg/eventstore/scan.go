package eventstore

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

func marshalMetadata(m event.Metadata) ([]byte, error) {
	return json.Marshal(m)
}

func scanEvents(rows *sql.Rows) ([]event.Envelope, error) {
	var events []event.Envelope
	for rows.Next() {
		var (
			e             event.Envelope
			metadataJSON  []byte
			correlationID uuid.UUID
		)

		if err := rows.Scan(
			&e.AggregateID,
			&e.AggregateType,
			&e.EventType,
			&e.Version,
			&e.GlobalVersion,
			&e.SchemaVersion,
			&e.Payload,
			&metadataJSON,
			&correlationID,
			&e.Timestamp,
			&e.Metadata.Stored,
		); err != nil {
			return nil, apperr.Wrap(apperr.KindEventLookupFailed, err, "scan event")
		}

		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &e.Metadata)
		}
		e.Metadata.CorrelationID = correlationID

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindEventLookupFailed, err, "iterate events")
	}
	return events, nil
}
