// Package projection maintains the denormalized, queryable read models that
// back the HTTP query surface for Books, Reservations and Wallets, deriving
// them entirely from the event log.
package projection

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// EventHandler applies one event to a read model. It must be idempotent
// under replay and tolerate out-of-order delivery across aggregates: a stale
// event is ignored, never an error. Each handler enforces this itself through
// the `version < $n` gate built by buildVersionGatedUpdate; Engine.Handle
// does not compare versions.
type EventHandler func(ctx context.Context, db *sqlx.DB, e event.Envelope) error

// Engine dispatches events to per-eventType handlers against a shared
// read-model database. A handler failure never blocks a different event
// type's handler from running.
type Engine struct {
	db       *sqlx.DB
	handlers map[string]EventHandler
}

// NewEngine wires a projection engine to its read-model database.
func NewEngine(db *sqlx.DB) *Engine {
	return &Engine{db: db, handlers: make(map[string]EventHandler)}
}

// Register binds a handler to an event type. Re-registering the same event
// type replaces the previous handler.
func (e *Engine) Register(eventType string, handler EventHandler) {
	e.handlers[eventType] = handler
}

// Handle applies e using the handler registered for its event type.
// Infrastructure errors (query/connection failures) are returned so the bus
// can nack and redeliver; an unregistered event type is not an error — the
// engine simply has nothing to project it into.
func (e *Engine) Handle(ctx context.Context, ev event.Envelope) error {
	handler, ok := e.handlers[ev.EventType]
	if !ok {
		return nil
	}
	if err := handler(ctx, e.db, ev); err != nil {
		if apperr.Is(err, apperr.KindDatabaseError) {
			return err
		}
		// Domain-shaped failures during projection are logged and
		// acknowledged, not nacked: the event is already a fact.
		log.Printf("projection: handler for %s failed (ack anyway): %v", ev.EventType, err)
		return nil
	}
	return nil
}
