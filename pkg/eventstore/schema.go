package eventstore

// Schema is the event-log DDL. Production deployments run this once via
// migration tooling outside the core; tests apply it directly against a
// throwaway database, the same way the teacher's benchmark setup did.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	global_version BIGSERIAL PRIMARY KEY,
	aggregate_id UUID NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type TEXT NOT NULL,
	version INT NOT NULL,
	schema_version INT NOT NULL DEFAULT 1,
	payload JSONB NOT NULL,
	metadata JSONB,
	correlation_id UUID NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (aggregate_id, version)
);

CREATE INDEX IF NOT EXISTS idx_events_aggregate_id ON events(aggregate_id);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
`
