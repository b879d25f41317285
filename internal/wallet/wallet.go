// Package wallet implements the Wallet aggregate: a per-user balance that
// funds reservation fees and absorbs late-return settlements.
package wallet

import (
	"time"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// Wallet is the rehydrated, in-memory state of one user's balance.
type Wallet struct {
	aggregate.Base

	UserID  uuid.UUID
	Balance float64
	Deleted bool
}

// New returns a zero-value Wallet ready for rehydration or creation.
func New() *Wallet {
	return &Wallet{}
}

// Apply folds one historical event onto the aggregate.
func (w *Wallet) Apply(e event.Envelope) error {
	switch e.EventType {
	case EventCreated:
		var p Created
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode WalletCreated")
		}
		w.ID = p.ID
		w.UserID = p.UserID
		w.Balance = p.InitialBalance
	case EventBalanceChanged:
		var p BalanceChanged
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode WalletBalanceChanged")
		}
		w.Balance = p.NewBalance
	case EventPaymentSuccess:
		var p PaymentSuccess
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode WalletPaymentSuccess")
		}
		w.Balance = p.NewBalance
	case EventPaymentDeclined:
		// no balance change
	case EventLateReturnApplied:
		var p LateReturnApplied
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode WalletLateReturnApplied")
		}
		w.Balance = p.NewBalance
	case EventDeleted:
		w.Deleted = true
	default:
		return apperr.Newf(apperr.KindInternal, "unknown wallet event type %q", e.EventType)
	}
	return nil
}

// Create opens a new wallet. The handler is responsible for proving no
// wallet already exists for userId via the event store's secondary-key
// lookup before calling this.
func Create(id uuid.UUID, userID uuid.UUID, initialBalance float64) (event.Envelope, error) {
	if userID == uuid.Nil {
		return event.Envelope{}, apperr.New(apperr.KindValidation, "userId is required")
	}
	return event.New(id, "wallet", EventCreated, Created{
		ID:             id,
		UserID:         userID,
		InitialBalance: initialBalance,
	}, uuid.Nil)
}

// Credit increases the balance unconditionally.
func (w *Wallet) Credit(amount float64, reason string) (event.Envelope, error) {
	if w.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindWalletNotFound, "wallet has been deleted")
	}
	if amount <= 0 {
		return event.Envelope{}, apperr.New(apperr.KindValidation, "credit amount must be positive")
	}
	newBalance := w.Balance + amount
	return event.New(w.ID, "wallet", EventBalanceChanged, BalanceChanged{
		Delta:      amount,
		NewBalance: newBalance,
		Reason:     reason,
	}, uuid.Nil)
}

// Debit decreases the balance, refusing to drive it negative.
func (w *Wallet) Debit(amount float64, reason string) (event.Envelope, error) {
	if w.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindWalletNotFound, "wallet has been deleted")
	}
	if amount <= 0 {
		return event.Envelope{}, apperr.New(apperr.KindValidation, "debit amount must be positive")
	}
	if w.Balance-amount < 0 {
		return event.Envelope{}, apperr.New(apperr.KindWalletInsufficientFunds, "insufficient funds")
	}
	newBalance := w.Balance - amount
	return event.New(w.ID, "wallet", EventBalanceChanged, BalanceChanged{
		Delta:      -amount,
		NewBalance: newBalance,
		Reason:     reason,
	}, uuid.Nil)
}

// ChargeReservationFee debits the reservation fee, emitting the payment
// outcome events the choreography expects instead of a generic balance
// change. A decline is not an error: it is a valid business outcome the
// handler still appends and publishes.
func (w *Wallet) ChargeReservationFee(reservationID uuid.UUID, amount float64, correlationID uuid.UUID) (event.Envelope, error) {
	if w.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindWalletNotFound, "wallet has been deleted")
	}
	if w.Balance-amount < 0 {
		return event.New(w.ID, "wallet", EventPaymentDeclined, PaymentDeclined{
			ReservationID: reservationID,
			Amount:        amount,
			Reason:        "insufficient funds",
		}, correlationID)
	}
	newBalance := w.Balance - amount
	return event.New(w.ID, "wallet", EventPaymentSuccess, PaymentSuccess{
		ReservationID: reservationID,
		Amount:        amount,
		NewBalance:    newBalance,
	}, correlationID)
}

// ApplyLateReturn debits the accrued late fee, capped at retailPrice, and
// reports whether the book is now considered bought. Unlike Debit, this
// path is explicitly permitted to drive the balance negative: the cap is
// retailPrice, not the wallet's available balance.
func (w *Wallet) ApplyLateReturn(reservationID uuid.UUID, daysLate int, lateFeePerDay, retailPrice float64, correlationID uuid.UUID) (event.Envelope, error) {
	if w.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindWalletNotFound, "wallet has been deleted")
	}
	fee := float64(daysLate) * lateFeePerDay
	bought := false
	if fee >= retailPrice {
		fee = retailPrice
		bought = true
	}
	newBalance := w.Balance - fee
	return event.New(w.ID, "wallet", EventLateReturnApplied, LateReturnApplied{
		ReservationID: reservationID,
		DaysLate:      daysLate,
		FeeApplied:    fee,
		NewBalance:    newBalance,
		Bought:        bought,
	}, correlationID)
}

// Delete retires a wallet from further mutation.
func (w *Wallet) Delete(now time.Time) (event.Envelope, error) {
	if w.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindWalletNotFound, "wallet already deleted")
	}
	return event.New(w.ID, "wallet", EventDeleted, Deleted{DeletedAt: now}, uuid.Nil)
}
