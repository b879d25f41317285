package choreography

import (
	"context"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/bus"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/reservation"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/wallet"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

// WireWalletDebit runs in the Wallets service: once a reservation's book is
// validated it attempts to collect the reservation fee from the
// reservation's owner.
func WireWalletDebit(ctx context.Context, b *bus.Bus, reservationStore *eventstore.EventStore, wallets *command.WalletHandler, reservations *command.ReservationHandler) {
	subscribe(ctx, b, reservation.EventBookValidated, logAndAck("wallet-debit", func(ctx context.Context, e event.Envelope) error {
		var p reservation.BookValidated
		if err := e.Decode(&p); err != nil {
			return err
		}
		if !p.IsValid {
			return nil
		}

		history, err := reservationStore.ReadStream(ctx, p.ReservationID)
		if err != nil {
			return err
		}
		r := reservation.New()
		if err := aggregate.Rehydrate(r, &r.Base, history); err != nil {
			return err
		}

		walletID, err := wallets.FindByUserID(ctx, r.UserID)
		if err != nil {
			return err
		}
		if walletID == nil {
			_, err := reservations.DeclinePayment(ctx, p.ReservationID, "no wallet on file for user", e.Metadata.CorrelationID)
			return err
		}

		_, err = wallets.ChargeReservationFee(ctx, *walletID, p.ReservationID, r.FeeCharged, e.Metadata.CorrelationID)
		return err
	}))
}

// WireReservationPaymentOutcome runs in the Reservations service: it
// translates the Wallets service's debit outcome into the reservation's own
// status transition.
func WireReservationPaymentOutcome(ctx context.Context, b *bus.Bus, reservations *command.ReservationHandler) {
	subscribe(ctx, b, wallet.EventPaymentSuccess, logAndAck("payment-success", func(ctx context.Context, e event.Envelope) error {
		var p wallet.PaymentSuccess
		if err := e.Decode(&p); err != nil {
			return err
		}
		_, err := reservations.ConfirmPayment(ctx, p.ReservationID, p.Amount, e.Metadata.CorrelationID)
		return err
	}))

	subscribe(ctx, b, wallet.EventPaymentDeclined, logAndAck("payment-declined", func(ctx context.Context, e event.Envelope) error {
		var p wallet.PaymentDeclined
		if err := e.Decode(&p); err != nil {
			return err
		}
		_, err := reservations.DeclinePayment(ctx, p.ReservationID, p.Reason, e.Metadata.CorrelationID)
		return err
	}))
}
