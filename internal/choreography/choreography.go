// Package choreography wires the asynchronous event dance between Books,
// Reservations and Wallets: no service calls another synchronously, each
// reacts to events the others publish.
package choreography

import (
	"context"
	"log"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/bus"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

const defaultMaxRetries = 5

// subscribe is a thin wrapper logging registration and normalizing the
// retry budget every choreography consumer uses.
func subscribe(ctx context.Context, b *bus.Bus, eventType string, handler bus.Handler) {
	if err := b.Subscribe(ctx, eventType, defaultMaxRetries, handler); err != nil {
		log.Printf("choreography: failed to subscribe to %s: %v", eventType, err)
	}
}

// logAndAck wraps a handler so any error is logged but the choreography
// layer acks rather than nacks on domain-shaped failures it cannot retry
// its way out of (e.g. the reservation already moved on). Infrastructure
// errors still propagate for the bus's own retry/DLQ policy.
func logAndAck(stage string, fn bus.Handler) bus.Handler {
	return func(ctx context.Context, e event.Envelope) error {
		err := fn(ctx, e)
		if err == nil {
			return nil
		}
		if apperr.Is(err, apperr.KindEventSaveFailed) ||
			apperr.Is(err, apperr.KindEventLookupFailed) ||
			apperr.Is(err, apperr.KindDatabaseError) {
			log.Printf("choreography[%s]: infrastructure error, propagating for retry: %v", stage, err)
			return err
		}
		log.Printf("choreography[%s]: %v", stage, err)
		return nil
	}
}
