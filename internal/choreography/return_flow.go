package choreography

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/reservation"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

// ReturnOutcome is the HTTP-facing payload for the return endpoint: the
// exact three-field shape the boundary contract calls for.
type ReturnOutcome struct {
	Message        string `json:"message"`
	LateFeeApplied string `json:"late_fee_applied"`
	DaysLate       int    `json:"days_late"`
}

// HandleReturn runs the return flow synchronously from the Reservations
// service's HTTP handler: it is the one place a "command" spans two
// aggregates directly rather than through the bus, because the client is
// waiting on a single response that depends on the settlement's outcome.
func HandleReturn(ctx context.Context, reservationStore *eventstore.EventStore, reservations *command.ReservationHandler, wallets *command.WalletHandler, reservationID uuid.UUID, now time.Time) (ReturnOutcome, error) {
	history, err := reservationStore.ReadStream(ctx, reservationID)
	if err != nil {
		return ReturnOutcome{}, err
	}
	if len(history) == 0 {
		return ReturnOutcome{}, apperr.Newf(apperr.KindReservationNotFound, "reservation %s not found", reservationID)
	}
	r := reservation.New()
	if err := aggregate.Rehydrate(r, &r.Base, history); err != nil {
		return ReturnOutcome{}, err
	}

	daysLate := reservation.DaysLate(r.DueDate, now)
	if daysLate == 0 {
		if _, err := reservations.Return(ctx, reservationID, now, 0, 0); err != nil {
			return ReturnOutcome{}, err
		}
		return ReturnOutcome{
			Message:        "Reservation marked as returned.",
			LateFeeApplied: "0.0",
			DaysLate:       0,
		}, nil
	}

	if _, err := reservations.MarkOverdue(ctx, reservationID, now, daysLate); err != nil {
		return ReturnOutcome{}, err
	}

	walletID, err := wallets.FindByUserID(ctx, r.UserID)
	if err != nil {
		return ReturnOutcome{}, err
	}
	if walletID == nil {
		return ReturnOutcome{}, apperr.Newf(apperr.KindWalletNotFound, "no wallet on file for user %s", r.UserID)
	}

	settlement, err := wallets.ApplyLateReturn(ctx, *walletID, reservationID, daysLate, r.RetailPrice, uuid.Nil)
	if err != nil {
		return ReturnOutcome{}, err
	}

	if settlement.Bought {
		if _, err := reservations.MarkBrought(ctx, reservationID, now, daysLate, settlement.FeeApplied); err != nil {
			return ReturnOutcome{}, err
		}
		return ReturnOutcome{
			Message:        "Book considered brought due to high late fees.",
			LateFeeApplied: fmt.Sprintf("%.1f", settlement.FeeApplied),
			DaysLate:       daysLate,
		}, nil
	}

	if _, err := reservations.Return(ctx, reservationID, now, daysLate, settlement.FeeApplied); err != nil {
		return ReturnOutcome{}, err
	}
	return ReturnOutcome{
		Message:        "Reservation marked as returned.",
		LateFeeApplied: fmt.Sprintf("%.1f", settlement.FeeApplied),
		DaysLate:       daysLate,
	}, nil
}
