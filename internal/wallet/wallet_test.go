package wallet

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

func apply(t *testing.T, w *Wallet, e event.Envelope) {
	t.Helper()
	require.NoError(t, w.Apply(e))
	w.Version++
}

func newWallet(t *testing.T, balance float64) *Wallet {
	t.Helper()
	created, err := Create(uuid.New(), uuid.New(), balance)
	require.NoError(t, err)
	w := New()
	apply(t, w, created)
	return w
}

func TestDebitRejectsOverdraft(t *testing.T) {
	w := newWallet(t, 10)
	_, err := w.Debit(20, "test")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindWalletInsufficientFunds))
}

func TestCreditThenDebit(t *testing.T) {
	w := newWallet(t, 10)
	credited, err := w.Credit(5, "topup")
	require.NoError(t, err)
	apply(t, w, credited)
	assert.Equal(t, 15.0, w.Balance)

	debited, err := w.Debit(5, "purchase")
	require.NoError(t, err)
	apply(t, w, debited)
	assert.Equal(t, 10.0, w.Balance)
}

func TestChargeReservationFeeDeclinesOnInsufficientFunds(t *testing.T) {
	w := newWallet(t, 1)
	env, err := w.ChargeReservationFee(uuid.New(), 3, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentDeclined, env.EventType)
	apply(t, w, env)
	assert.Equal(t, 1.0, w.Balance, "a declined charge must not move the balance")
}

func TestChargeReservationFeeSucceeds(t *testing.T) {
	w := newWallet(t, 10)
	env, err := w.ChargeReservationFee(uuid.New(), 3, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSuccess, env.EventType)
	apply(t, w, env)
	assert.Equal(t, 7.0, w.Balance)
}

func TestApplyLateReturnCapsAtRetailPriceAndMarksBought(t *testing.T) {
	w := newWallet(t, 100)
	env, err := w.ApplyLateReturn(uuid.New(), 200, 0.2, 25, uuid.Nil)
	require.NoError(t, err)

	var p LateReturnApplied
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, 25.0, p.FeeApplied)
	assert.True(t, p.Bought)

	apply(t, w, env)
	assert.Equal(t, 75.0, w.Balance)
}

func TestApplyLateReturnCanDriveBalanceNegative(t *testing.T) {
	w := newWallet(t, 1)
	env, err := w.ApplyLateReturn(uuid.New(), 10, 0.2, 10, uuid.Nil)
	require.NoError(t, err)

	var p LateReturnApplied
	require.NoError(t, env.Decode(&p))
	assert.False(t, p.Bought)
	assert.InDelta(t, 2.0, p.FeeApplied, 0.0001)
	assert.InDelta(t, -1.0, p.NewBalance, 0.0001)
}

func TestDeleteIsOneWay(t *testing.T) {
	w := newWallet(t, 0)
	deleted, err := w.Delete(time.Now().UTC())
	require.NoError(t, err)
	apply(t, w, deleted)
	assert.True(t, w.Deleted)

	_, err = w.Delete(time.Now().UTC())
	require.Error(t, err)
	_, err = w.Debit(1, "x")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindWalletNotFound))
}
