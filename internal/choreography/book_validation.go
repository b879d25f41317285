package choreography

import (
	"context"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/book"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/bus"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/reservation"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

// WireBookValidation runs in the Books service: on every new reservation it
// looks up the referenced book and reports back whether the reservation may
// proceed.
func WireBookValidation(ctx context.Context, b *bus.Bus, bookStore *eventstore.EventStore, reservations *command.ReservationHandler) {
	subscribe(ctx, b, reservation.EventCreated, logAndAck("book-validation", func(ctx context.Context, e event.Envelope) error {
		var p reservation.Created
		if err := e.Decode(&p); err != nil {
			return err
		}

		history, err := bookStore.ReadStream(ctx, p.BookID)
		if err != nil {
			return err
		}

		isValid := false
		reason := "book not found"
		var retailPrice float64

		if len(history) > 0 {
			bk := book.New()
			if err := aggregate.Rehydrate(bk, &bk.Base, history); err != nil {
				return err
			}
			if bk.Deleted {
				reason = "book has been removed from the catalog"
			} else {
				isValid = true
				reason = ""
				retailPrice = bk.Price
			}
		}

		_, err = reservations.ValidateBook(ctx, p.ID, isValid, reason, retailPrice, e.Metadata.CorrelationID)
		return err
	}))
}
