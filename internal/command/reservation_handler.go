package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/reservation"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

// ReservationHandler executes commands against the Reservation aggregate.
// Most of its methods are invoked by the choreography layer reacting to
// events from Books and Wallets, not directly by an HTTP caller.
type ReservationHandler struct {
	store     *eventstore.EventStore
	publisher Publisher
	dueDays   int
	fee       float64
}

// NewReservationHandler wires a Reservation command handler.
func NewReservationHandler(store *eventstore.EventStore, publisher Publisher, dueDays int, fee float64) *ReservationHandler {
	return &ReservationHandler{store: store, publisher: publisher, dueDays: dueDays, fee: fee}
}

// Create opens a new reservation request in CREATED status. A duplicate
// in-flight reservation for the same (userId, bookId) pair is rejected by
// the caller via a projection query before this is invoked — the aggregate
// itself has no prior state to compare against at creation.
func (h *ReservationHandler) Create(ctx context.Context, userID, bookID uuid.UUID) (Result, error) {
	id := uuid.New()
	now := time.Now().UTC()
	ev, err := reservation.Create(id, reservation.CreateInput{
		UserID: userID, BookID: bookID, DueDays: h.dueDays, Fee: h.fee,
	}, now)
	if err != nil {
		return Result{}, err
	}
	evs := []event.Envelope{ev}
	if err := h.store.Append(ctx, id, "reservation", 0, evs); err != nil {
		return Result{}, err
	}
	ev = evs[0]
	h.publish(ctx, ev)
	return Result{AggregateID: id, Version: ev.Version}, nil
}

// ValidateBook records the Books service's verdict on the referenced book.
func (h *ReservationHandler) ValidateBook(ctx context.Context, id uuid.UUID, isValid bool, reason string, retailPrice float64, correlationID uuid.UUID) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.ValidateBook(isValid, reason, retailPrice, correlationID)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// ConfirmPayment transitions a reservation to RESERVED.
func (h *ReservationHandler) ConfirmPayment(ctx context.Context, id uuid.UUID, amountCharged float64, correlationID uuid.UUID) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.ConfirmPayment(amountCharged, correlationID)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// DeclinePayment transitions a reservation to REJECTED.
func (h *ReservationHandler) DeclinePayment(ctx context.Context, id uuid.UUID, reason string, correlationID uuid.UUID) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.DeclinePayment(reason, correlationID)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// Reject marks a reservation REJECTED directly from CREATED.
func (h *ReservationHandler) Reject(ctx context.Context, id uuid.UUID, reason string, correlationID uuid.UUID) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.Reject(reason, correlationID)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// Return marks an on-time or settled-without-purchase return.
func (h *ReservationHandler) Return(ctx context.Context, id uuid.UUID, now time.Time, daysLate int, lateFeeApplied float64) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.Return(now, daysLate, lateFeeApplied)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// Cancel withdraws a reservation before it is returned.
func (h *ReservationHandler) Cancel(ctx context.Context, id uuid.UUID, reason string) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.Cancel(reason, time.Now().UTC())
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// MarkOverdue transitions a reservation from RESERVED to LATE.
func (h *ReservationHandler) MarkOverdue(ctx context.Context, id uuid.UUID, now time.Time, daysLate int) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.MarkOverdue(now, daysLate)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// MarkBrought settles a LATE reservation whose fee reached retail price.
func (h *ReservationHandler) MarkBrought(ctx context.Context, id uuid.UUID, now time.Time, daysLate int, lateFeeApplied float64) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.MarkBrought(now, daysLate, lateFeeApplied)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

// Delete retires a terminal reservation record.
func (h *ReservationHandler) Delete(ctx context.Context, id uuid.UUID) (Result, error) {
	r, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := r.Delete(time.Now().UTC())
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, r.Version, ev)
}

func (h *ReservationHandler) load(ctx context.Context, id uuid.UUID) (*reservation.Reservation, error) {
	history, err := h.store.ReadStream(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, apperr.Newf(apperr.KindReservationNotFound, "reservation %s not found", id)
	}
	r := reservation.New()
	if err := aggregate.Rehydrate(r, &r.Base, history); err != nil {
		return nil, err
	}
	return r, nil
}

func (h *ReservationHandler) appendAndPublish(ctx context.Context, id uuid.UUID, expectedVersion int, ev event.Envelope) (Result, error) {
	evs := []event.Envelope{ev}
	if err := h.store.Append(ctx, id, "reservation", expectedVersion, evs); err != nil {
		return Result{}, err
	}
	ev = evs[0]
	h.publish(ctx, ev)
	return Result{AggregateID: id, Version: ev.Version}, nil
}

func (h *ReservationHandler) publish(ctx context.Context, ev event.Envelope) {
	if h.publisher == nil {
		return
	}
	_ = h.publisher.Publish(ctx, ev)
}
