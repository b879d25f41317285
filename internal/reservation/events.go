package reservation

import (
	"time"

	"github.com/google/uuid"
)

// EventType constants for the Reservation aggregate stream.
const (
	EventCreated         EventType = "ReservationCreated"
	EventBookValidated   EventType = "ReservationBookValidated"
	EventPaymentSuccess  EventType = "ReservationPaymentSuccess"
	EventPaymentDeclined EventType = "ReservationPaymentDeclined"
	EventReturned        EventType = "ReservationReturned"
	EventCancelled       EventType = "ReservationCancelled"
	EventOverdue         EventType = "ReservationOverdue"
	EventBookBrought     EventType = "ReservationBookBrought"
	EventDeleted         EventType = "ReservationDeleted"
)

// EventType is the wire eventType string tagging a Reservation event.
type EventType = string

// Created marks the opening of a reservation request.
type Created struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"userId"`
	BookID     uuid.UUID `json:"bookId"`
	ReservedAt time.Time `json:"reservedAt"`
	DueDate    time.Time `json:"dueDate"`
	FeeCharged float64   `json:"feeCharged"`
}

// BookValidated carries the outcome of the Books service's id lookup.
type BookValidated struct {
	ReservationID uuid.UUID `json:"reservationId"`
	IsValid       bool      `json:"isValid"`
	Reason        string    `json:"reason,omitempty"`
	RetailPrice   float64   `json:"retailPrice,omitempty"`
}

// PaymentSuccess records the wallet debit that secured the reservation fee.
type PaymentSuccess struct {
	ReservationID uuid.UUID `json:"reservationId"`
	AmountCharged float64   `json:"amountCharged"`
}

// PaymentDeclined records why the reservation fee could not be collected.
type PaymentDeclined struct {
	ReservationID uuid.UUID `json:"reservationId"`
	Reason        string    `json:"reason"`
}

// Returned marks an on-time or late-but-under-threshold book return.
type Returned struct {
	ReturnedAt    time.Time `json:"returnedAt"`
	DaysLate      int       `json:"daysLate"`
	LateFeeApplied float64  `json:"lateFeeApplied"`
}

// Cancelled marks a reservation withdrawn before return.
type Cancelled struct {
	CancelledAt time.Time `json:"cancelledAt"`
	Reason      string    `json:"reason,omitempty"`
}

// Overdue marks a reservation that passed its due date unreturned.
type Overdue struct {
	DetectedAt time.Time `json:"detectedAt"`
	DaysLate   int       `json:"daysLate"`
}

// BookBrought marks a late return whose accrued fee reached the book's
// retail price — the copy is considered sold rather than returned.
type BookBrought struct {
	SettledAt      time.Time `json:"settledAt"`
	DaysLate       int       `json:"daysLate"`
	LateFeeApplied float64   `json:"lateFeeApplied"`
}

// Deleted retires a reservation record from further mutation.
type Deleted struct {
	DeletedAt time.Time `json:"deletedAt"`
}
