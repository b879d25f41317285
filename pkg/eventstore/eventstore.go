// Package eventstore provides the append-only, per-aggregate optimistic-
// concurrency event log shared by the Books, Reservations and Wallets
// services. It is the single source of truth for aggregate history; every
// projection document is a derived, rebuildable view of what lives here.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// EventStore provides ACID guarantees for event sourcing on top of Postgres.
type EventStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewEventStore creates a new event store with connection pooling.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{
		db:     db,
		tracer: otel.Tracer("library/eventstore"),
	}
}

// Append atomically appends events for aggregateID under an expected-version
// check, assigning per-aggregate version and cluster-wide global version.
func (es *EventStore) Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []event.Envelope) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	tx, err := es.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return apperr.Wrap(apperr.KindEventSaveFailed, err, "begin transaction")
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return apperr.Wrap(apperr.KindEventLookupFailed, err, "query current version")
	}

	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return apperr.New(apperr.KindConcurrencyConflict, "concurrency conflict: version mismatch")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (aggregate_id, aggregate_type, event_type, version, schema_version, payload, metadata, correlation_id, timestamp, stored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING global_version
	`)
	if err != nil {
		return apperr.Wrap(apperr.KindEventSaveFailed, err, "prepare statement")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range events {
		version := expectedVersion + i + 1
		events[i].Version = version
		if events[i].Metadata.CorrelationID == uuid.Nil {
			events[i].Metadata.CorrelationID = uuid.New()
		}
		events[i].Metadata.Stored = now
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = now
		}

		metadataJSON, merr := marshalMetadata(events[i].Metadata)
		if merr != nil {
			return apperr.Wrap(apperr.KindEventSaveFailed, merr, "marshal metadata")
		}

		var globalVersion int64
		err = stmt.QueryRowContext(
			ctx,
			aggregateID,
			aggregateType,
			events[i].EventType,
			version,
			events[i].SchemaVersion,
			[]byte(events[i].Payload),
			metadataJSON,
			events[i].Metadata.CorrelationID,
			events[i].Timestamp,
			now,
		).Scan(&globalVersion)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return apperr.New(apperr.KindDuplicateEvent, "duplicate event: (aggregateId, version) already exists")
			}
			return apperr.Wrap(apperr.KindEventSaveFailed, err, fmt.Sprintf("insert event %d", i))
		}
		events[i].GlobalVersion = globalVersion
		events[i].AggregateID = aggregateID
		events[i].AggregateType = aggregateType

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.global_version", globalVersion),
			attribute.Int("event.version", version),
			attribute.String("event.type", events[i].EventType),
		))
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindEventSaveFailed, err, "commit transaction")
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// ReadStream returns all events for aggregateID sorted ascending by version.
// An empty slice means the aggregate does not exist.
func (es *EventStore) ReadStream(ctx context.Context, aggregateID uuid.UUID) ([]event.Envelope, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.read_stream",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	rows, err := es.db.QueryContext(ctx, `
		SELECT aggregate_id, aggregate_type, event_type, version, global_version, schema_version, payload, metadata, correlation_id, timestamp, stored_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, aggregateID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEventLookupFailed, err, "query events")
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// FindLatestByPayloadField returns the aggregate id of the latest event of
// eventType whose payload has fieldPath == value, unless that aggregate has
// since been followed by a *Deleted event — in which case it returns nil.
func (es *EventStore) FindLatestByPayloadField(ctx context.Context, eventType, fieldPath, value string) (*uuid.UUID, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.find_latest_by_payload_field",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("field.path", fieldPath),
		),
	)
	defer span.End()

	var aggregateID uuid.UUID
	err := es.db.QueryRowContext(ctx, `
		SELECT e.aggregate_id
		FROM events e
		WHERE e.event_type = $1
		  AND e.payload ->> $2 = $3
		  AND NOT EXISTS (
		      SELECT 1 FROM events d
		      WHERE d.aggregate_id = e.aggregate_id
		        AND d.event_type LIKE '%Deleted'
		        AND d.version > e.version
		  )
		ORDER BY e.version DESC
		LIMIT 1
	`, eventType, fieldPath, value).Scan(&aggregateID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEventLookupFailed, err, "find latest by payload field")
	}

	span.SetAttributes(attribute.String("aggregate.id", aggregateID.String()))
	return &aggregateID, nil
}

// StreamAll returns events in global order starting after fromGlobalVersion,
// for projection replay and rebuild.
func (es *EventStore) StreamAll(ctx context.Context, fromGlobalVersion int64, batchSize int) ([]event.Envelope, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.stream_all",
		trace.WithAttributes(
			attribute.Int64("from.global_version", fromGlobalVersion),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	rows, err := es.db.QueryContext(ctx, `
		SELECT aggregate_id, aggregate_type, event_type, version, global_version, schema_version, payload, metadata, correlation_id, timestamp, stored_at
		FROM events
		WHERE global_version > $1
		ORDER BY global_version ASC
		LIMIT $2
	`, fromGlobalVersion, batchSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindEventLookupFailed, err, "query event stream")
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}

// CurrentVersion returns the latest per-aggregate version, 0 if unknown.
func (es *EventStore) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	var version int
	err := es.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1
	`, aggregateID).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, apperr.Wrap(apperr.KindEventLookupFailed, err, "query version")
	}
	return version, nil
}
