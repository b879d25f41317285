package projection

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/reservation"
)

// ReservationRead is the denormalized Reservation read model row.
type ReservationRead struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"userId"`
	BookID      string     `db:"book_id" json:"bookId"`
	Status      string     `db:"status" json:"status"`
	ReservedAt  time.Time  `db:"reserved_at" json:"reservedAt"`
	DueDate     time.Time  `db:"due_date" json:"dueDate"`
	FeeCharged  float64    `db:"fee_charged" json:"feeCharged"`
	RetailPrice *float64   `db:"retail_price" json:"retailPrice,omitempty"`
	Version     int        `db:"version" json:"version"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// ReservationReadSchema creates the reservation_reads table.
const ReservationReadSchema = `
CREATE TABLE IF NOT EXISTS reservation_reads (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	book_id UUID NOT NULL,
	status TEXT NOT NULL,
	reserved_at TIMESTAMPTZ NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	fee_charged NUMERIC NOT NULL,
	retail_price NUMERIC,
	version INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reservation_reads_user_id ON reservation_reads(user_id);
CREATE INDEX IF NOT EXISTS idx_reservation_reads_book_status ON reservation_reads(book_id, status);
`

// RegisterReservationHandlers wires the Reservation aggregate's events into e.
func RegisterReservationHandlers(e *Engine) {
	e.Register(reservation.EventCreated, handleReservationCreated)
	e.Register(reservation.EventBookValidated, handleReservationBookValidated)
	e.Register(reservation.EventPaymentSuccess, handleReservationStatusOnly(reservation.StatusReserved))
	e.Register(reservation.EventPaymentDeclined, handleReservationStatusOnly(reservation.StatusRejected))
	e.Register(reservation.EventReturned, handleReservationStatusOnly(reservation.StatusReturned))
	e.Register(reservation.EventCancelled, handleReservationStatusOnly(reservation.StatusCancelled))
	e.Register(reservation.EventOverdue, handleReservationStatusOnly(reservation.StatusLate))
	e.Register(reservation.EventBookBrought, handleReservationStatusOnly(reservation.StatusBrought))
	e.Register(reservation.EventDeleted, handleReservationDeleted)
}

func handleReservationCreated(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p reservation.Created
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode ReservationCreated")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO reservation_reads (id, user_id, book_id, status, reserved_at, due_date, fee_charged, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.UserID, p.BookID, reservation.StatusCreated, p.ReservedAt, p.DueDate, p.FeeCharged, ev.Version, p.ReservedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "insert reservation_reads")
	}
	return nil
}

func handleReservationBookValidated(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p reservation.BookValidated
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode ReservationBookValidated")
	}

	status := reservation.StatusPendingPayment
	if !p.IsValid {
		status = reservation.StatusRejected
	}

	query, args := buildVersionGatedUpdate("reservation_reads", ev.AggregateID.String(), ev.Version, map[string]interface{}{
		"status":       status,
		"retail_price": p.RetailPrice,
	}, "updated_at", ev.Timestamp)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "update reservation_reads")
	}
	return nil
}

func handleReservationStatusOnly(status reservation.Status) EventHandler {
	return func(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
		query, args := buildVersionGatedUpdate("reservation_reads", ev.AggregateID.String(), ev.Version, map[string]interface{}{
			"status": status,
		}, "updated_at", ev.Timestamp)
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return apperr.Wrap(apperr.KindDatabaseError, err, "update reservation_reads status")
		}
		return nil
	}
}

func handleReservationDeleted(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p reservation.Deleted
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode ReservationDeleted")
	}
	_, err := db.ExecContext(ctx, `
		UPDATE reservation_reads SET deleted_at = $1, version = $2
		WHERE id = $3 AND version < $2
	`, p.DeletedAt, ev.Version, ev.AggregateID)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "soft-delete reservation_reads")
	}
	return nil
}
