package wallet

import (
	"time"

	"github.com/google/uuid"
)

// EventType constants for the Wallet aggregate stream.
const (
	EventCreated         EventType = "WalletCreated"
	EventBalanceChanged  EventType = "WalletBalanceChanged"
	EventPaymentSuccess  EventType = "WalletPaymentSuccess"
	EventPaymentDeclined EventType = "WalletPaymentDeclined"
	EventLateReturnApplied EventType = "WalletLateReturnApplied"
	EventDeleted         EventType = "WalletDeleted"
)

// EventType is the wire eventType string tagging a Wallet event.
type EventType = string

// Created opens a new wallet for userId with an optional opening balance.
type Created struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"userId"`
	InitialBalance float64   `json:"initialBalance"`
}

// BalanceChanged records a plain debit or credit outside the reservation
// payment and late-fee flows (e.g. a manual top-up).
type BalanceChanged struct {
	Delta      float64 `json:"delta"`
	NewBalance float64 `json:"newBalance"`
	Reason     string  `json:"reason,omitempty"`
}

// PaymentSuccess records a debit that funded a reservation fee.
type PaymentSuccess struct {
	ReservationID uuid.UUID `json:"reservationId"`
	Amount        float64   `json:"amount"`
	NewBalance    float64   `json:"newBalance"`
}

// PaymentDeclined records a reservation fee debit that the wallet could not
// cover.
type PaymentDeclined struct {
	ReservationID uuid.UUID `json:"reservationId"`
	Amount        float64   `json:"amount"`
	Reason        string    `json:"reason"`
}

// LateReturnApplied records the settlement debit for an overdue return,
// capped at the book's retail price, and whether the book is now considered
// bought.
type LateReturnApplied struct {
	ReservationID uuid.UUID `json:"reservationId"`
	DaysLate      int       `json:"daysLate"`
	FeeApplied    float64   `json:"feeApplied"`
	NewBalance    float64   `json:"newBalance"`
	Bought        bool      `json:"bought"`
}

// Deleted retires a wallet from further mutation.
type Deleted struct {
	DeletedAt time.Time `json:"deletedAt"`
}
