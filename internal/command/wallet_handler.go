package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/wallet"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

// WalletHandler executes commands against the Wallet aggregate.
type WalletHandler struct {
	store     *eventstore.EventStore
	publisher Publisher
	lateFeePerDay float64
}

// NewWalletHandler wires a Wallet command handler.
func NewWalletHandler(store *eventstore.EventStore, publisher Publisher, lateFeePerDay float64) *WalletHandler {
	return &WalletHandler{store: store, publisher: publisher, lateFeePerDay: lateFeePerDay}
}

// Create opens a new wallet for userId after proving none already exists.
func (h *WalletHandler) Create(ctx context.Context, userID uuid.UUID, initialBalance float64) (Result, error) {
	existing, err := h.store.FindLatestByPayloadField(ctx, wallet.EventCreated, "userId", userID.String())
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{}, apperr.Newf(apperr.KindValidation, "wallet for user %s already exists", userID)
	}

	id := uuid.New()
	ev, err := wallet.Create(id, userID, initialBalance)
	if err != nil {
		return Result{}, err
	}
	evs := []event.Envelope{ev}
	if err := h.store.Append(ctx, id, "wallet", 0, evs); err != nil {
		return Result{}, err
	}
	ev = evs[0]
	h.publish(ctx, ev)
	return Result{AggregateID: id, Version: ev.Version}, nil
}

// Credit increases a wallet's balance.
func (h *WalletHandler) Credit(ctx context.Context, id uuid.UUID, amount float64, reason string) (Result, error) {
	w, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := w.Credit(amount, reason)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, w.Version, ev)
}

// Debit decreases a wallet's balance, refusing to overdraw.
func (h *WalletHandler) Debit(ctx context.Context, id uuid.UUID, amount float64, reason string) (Result, error) {
	w, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := w.Debit(amount, reason)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, w.Version, ev)
}

// ChargeReservationFee debits the reservation fee, or emits a decline — both
// are successful command outcomes from the handler's point of view.
func (h *WalletHandler) ChargeReservationFee(ctx context.Context, walletID, reservationID uuid.UUID, amount float64, correlationID uuid.UUID) (Result, error) {
	w, err := h.load(ctx, walletID)
	if err != nil {
		return Result{}, err
	}
	ev, err := w.ChargeReservationFee(reservationID, amount, correlationID)
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, walletID, w.Version, ev)
}

// LateReturnOutcome reports the settlement a late-return debit produced,
// which the return-flow choreography needs to decide the reservation's
// final status.
type LateReturnOutcome struct {
	Result
	FeeApplied float64
	Bought     bool
}

// ApplyLateReturn debits the accrued late fee, capped at retailPrice, and
// reports whether the book is now considered bought.
func (h *WalletHandler) ApplyLateReturn(ctx context.Context, walletID, reservationID uuid.UUID, daysLate int, retailPrice float64, correlationID uuid.UUID) (LateReturnOutcome, error) {
	w, err := h.load(ctx, walletID)
	if err != nil {
		return LateReturnOutcome{}, err
	}
	ev, err := w.ApplyLateReturn(reservationID, daysLate, h.lateFeePerDay, retailPrice, correlationID)
	if err != nil {
		return LateReturnOutcome{}, err
	}

	var payload wallet.LateReturnApplied
	if derr := ev.Decode(&payload); derr != nil {
		return LateReturnOutcome{}, apperr.Wrap(apperr.KindInternal, derr, "decode WalletLateReturnApplied")
	}

	result, err := h.appendAndPublish(ctx, walletID, w.Version, ev)
	if err != nil {
		return LateReturnOutcome{}, err
	}
	return LateReturnOutcome{Result: result, FeeApplied: payload.FeeApplied, Bought: payload.Bought}, nil
}

// Delete retires a wallet.
func (h *WalletHandler) Delete(ctx context.Context, id uuid.UUID) (Result, error) {
	w, err := h.load(ctx, id)
	if err != nil {
		return Result{}, err
	}
	ev, err := w.Delete(time.Now().UTC())
	if err != nil {
		return Result{}, err
	}
	return h.appendAndPublish(ctx, id, w.Version, ev)
}

// FindByUserID returns the wallet aggregate id for userId, or nil if none.
func (h *WalletHandler) FindByUserID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	return h.store.FindLatestByPayloadField(ctx, wallet.EventCreated, "userId", userID.String())
}

func (h *WalletHandler) load(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	history, err := h.store.ReadStream(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, apperr.Newf(apperr.KindWalletNotFound, "wallet %s not found", id)
	}
	w := wallet.New()
	if err := aggregate.Rehydrate(w, &w.Base, history); err != nil {
		return nil, err
	}
	return w, nil
}

func (h *WalletHandler) appendAndPublish(ctx context.Context, id uuid.UUID, expectedVersion int, ev event.Envelope) (Result, error) {
	evs := []event.Envelope{ev}
	if err := h.store.Append(ctx, id, "wallet", expectedVersion, evs); err != nil {
		return Result{}, err
	}
	ev = evs[0]
	h.publish(ctx, ev)
	return Result{AggregateID: id, Version: ev.Version}, nil
}

func (h *WalletHandler) publish(ctx context.Context, ev event.Envelope) {
	if h.publisher == nil {
		return
	}
	_ = h.publisher.Publish(ctx, ev)
}
