// Package reservation implements the Reservation aggregate: the 8-state
// lifecycle of a book loan request from creation through settlement.
package reservation

import (
	"time"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// Status is one state in the reservation lifecycle.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPendingPayment  Status = "PENDING_PAYMENT"
	StatusReserved        Status = "RESERVED"
	StatusRejected        Status = "REJECTED"
	StatusLate            Status = "LATE"
	StatusReturned        Status = "RETURNED"
	StatusCancelled       Status = "CANCELLED"
	StatusBrought         Status = "BROUGHT"
)

// terminal reports whether s is one of the lifecycle's absorbing states.
func (s Status) terminal() bool {
	switch s {
	case StatusRejected, StatusReturned, StatusCancelled, StatusBrought:
		return true
	default:
		return false
	}
}

// Reservation is the rehydrated, in-memory state of one loan request.
type Reservation struct {
	aggregate.Base

	UserID      uuid.UUID
	BookID      uuid.UUID
	Status      Status
	ReservedAt  time.Time
	DueDate     time.Time
	FeeCharged  float64
	RetailPrice float64
	Deleted     bool
}

// New returns a zero-value Reservation ready for rehydration or creation.
func New() *Reservation {
	return &Reservation{}
}

// Apply folds one historical event onto the aggregate.
func (r *Reservation) Apply(e event.Envelope) error {
	switch e.EventType {
	case EventCreated:
		var p Created
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode ReservationCreated")
		}
		r.ID = p.ID
		r.UserID = p.UserID
		r.BookID = p.BookID
		r.ReservedAt = p.ReservedAt
		r.DueDate = p.DueDate
		r.FeeCharged = p.FeeCharged
		r.Status = StatusCreated
	case EventBookValidated:
		var p BookValidated
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode ReservationBookValidated")
		}
		if p.IsValid {
			r.Status = StatusPendingPayment
			r.RetailPrice = p.RetailPrice
		} else {
			r.Status = StatusRejected
		}
	case EventPaymentSuccess:
		r.Status = StatusReserved
	case EventPaymentDeclined:
		r.Status = StatusRejected
	case EventReturned:
		r.Status = StatusReturned
	case EventCancelled:
		r.Status = StatusCancelled
	case EventOverdue:
		r.Status = StatusLate
	case EventBookBrought:
		r.Status = StatusBrought
	case EventDeleted:
		var p Deleted
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode ReservationDeleted")
		}
		r.Deleted = true
		_ = p
	default:
		return apperr.Newf(apperr.KindInternal, "unknown reservation event type %q", e.EventType)
	}
	return nil
}

// CreateInput is the shape-validated payload for Create.
type CreateInput struct {
	UserID  uuid.UUID
	BookID  uuid.UUID
	DueDays int
	Fee     float64
}

// Create opens a new reservation in CREATED status. The handler is
// responsible for checking RESERVATION_DUPLICATE_RESERVATION before calling
// this — Create itself has no prior state to check against.
func Create(id uuid.UUID, in CreateInput, now time.Time) (event.Envelope, error) {
	if in.UserID == uuid.Nil || in.BookID == uuid.Nil {
		return event.Envelope{}, apperr.New(apperr.KindValidation, "userId and bookId are required")
	}
	if in.DueDays <= 0 {
		in.DueDays = 5
	}
	payload := Created{
		ID:         id,
		UserID:     in.UserID,
		BookID:     in.BookID,
		ReservedAt: now,
		DueDate:    now.AddDate(0, 0, in.DueDays),
		FeeCharged: in.Fee,
	}
	return event.New(id, "reservation", EventCreated, payload, uuid.Nil)
}

// ValidateBook records the Books service's verdict on the referenced book.
func (r *Reservation) ValidateBook(isValid bool, reason string, retailPrice float64, correlationID uuid.UUID) (event.Envelope, error) {
	if r.Status != StatusCreated {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeConfirmed, "cannot validate book from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventBookValidated, BookValidated{
		ReservationID: r.ID,
		IsValid:       isValid,
		Reason:        reason,
		RetailPrice:   retailPrice,
	}, correlationID)
}

// ConfirmPayment transitions a pending reservation to RESERVED after the
// wallet debit for the reservation fee succeeds.
func (r *Reservation) ConfirmPayment(amountCharged float64, correlationID uuid.UUID) (event.Envelope, error) {
	if r.Status != StatusPendingPayment {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeConfirmed, "cannot confirm payment from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventPaymentSuccess, PaymentSuccess{
		ReservationID: r.ID,
		AmountCharged: amountCharged,
	}, correlationID)
}

// DeclinePayment transitions a pending reservation to REJECTED because the
// wallet could not cover the reservation fee.
func (r *Reservation) DeclinePayment(reason string, correlationID uuid.UUID) (event.Envelope, error) {
	if r.Status != StatusPendingPayment {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeRejected, "cannot decline payment from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventPaymentDeclined, PaymentDeclined{
		ReservationID: r.ID,
		Reason:        reason,
	}, correlationID)
}

// Reject marks a reservation REJECTED directly from CREATED by recording a
// declined payment. A missing book is handled by ValidateBook instead.
func (r *Reservation) Reject(reason string, correlationID uuid.UUID) (event.Envelope, error) {
	if r.Status != StatusCreated {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeRejected, "cannot reject from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventPaymentDeclined, PaymentDeclined{
		ReservationID: r.ID,
		Reason:        reason,
	}, correlationID)
}

// Return marks an on-time (or late-but-settled-without-purchase) return.
func (r *Reservation) Return(now time.Time, daysLate int, lateFeeApplied float64) (event.Envelope, error) {
	if r.Status != StatusReserved && r.Status != StatusLate {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeReturned, "cannot return from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventReturned, Returned{
		ReturnedAt:     now,
		DaysLate:       daysLate,
		LateFeeApplied: lateFeeApplied,
	}, uuid.Nil)
}

// Cancel withdraws a reservation before it is returned.
func (r *Reservation) Cancel(reason string, now time.Time) (event.Envelope, error) {
	if r.Status != StatusReserved {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeCancelled, "cannot cancel from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventCancelled, Cancelled{
		CancelledAt: now,
		Reason:      reason,
	}, uuid.Nil)
}

// MarkOverdue transitions a RESERVED reservation to LATE once it has passed
// its due date unreturned.
func (r *Reservation) MarkOverdue(now time.Time, daysLate int) (event.Envelope, error) {
	if r.Status != StatusReserved {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeReturned, "cannot mark overdue from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventOverdue, Overdue{
		DetectedAt: now,
		DaysLate:   daysLate,
	}, uuid.Nil)
}

// MarkBrought settles a LATE reservation whose accrued fee reached the
// book's retail price: the copy is considered sold.
func (r *Reservation) MarkBrought(now time.Time, daysLate int, lateFeeApplied float64) (event.Envelope, error) {
	if r.Status != StatusLate {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeReturned, "cannot settle as brought from status %s", r.Status)
	}
	return event.New(r.ID, "reservation", EventBookBrought, BookBrought{
		SettledAt:      now,
		DaysLate:       daysLate,
		LateFeeApplied: lateFeeApplied,
	}, uuid.Nil)
}

// Delete retires a reservation record. Only terminal reservations may be
// deleted; an in-flight reservation must reach a terminal state first.
func (r *Reservation) Delete(now time.Time) (event.Envelope, error) {
	if !r.Status.terminal() {
		return event.Envelope{}, apperr.Newf(apperr.KindReservationCannotBeCancelled, "cannot delete reservation in non-terminal status %s", r.Status)
	}
	if r.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindReservationNotFound, "reservation already deleted")
	}
	return event.New(r.ID, "reservation", EventDeleted, Deleted{DeletedAt: now}, uuid.Nil)
}

// DaysLate computes the whole-day lateness of a return relative to dueDate.
func DaysLate(dueDate, returnedAt time.Time) int {
	if !returnedAt.After(dueDate) {
		return 0
	}
	d := returnedAt.Sub(dueDate)
	days := int(d.Hours() / 24)
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}
