package reservation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

func apply(t *testing.T, r *Reservation, e event.Envelope) {
	t.Helper()
	require.NoError(t, r.Apply(e))
	r.Version++
}

func newReservation(t *testing.T, now time.Time) *Reservation {
	t.Helper()
	id := uuid.New()
	created, err := Create(id, CreateInput{UserID: uuid.New(), BookID: uuid.New(), DueDays: 5, Fee: 3}, now)
	require.NoError(t, err)
	r := New()
	apply(t, r, created)
	return r
}

func TestHappyPathToReserved(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)
	assert.Equal(t, StatusCreated, r.Status)

	validated, err := r.ValidateBook(true, "", 25, uuid.Nil)
	require.NoError(t, err)
	apply(t, r, validated)
	assert.Equal(t, StatusPendingPayment, r.Status)
	assert.Equal(t, 25.0, r.RetailPrice)

	paid, err := r.ConfirmPayment(3, uuid.Nil)
	require.NoError(t, err)
	apply(t, r, paid)
	assert.Equal(t, StatusReserved, r.Status)
}

func TestInvalidBookRejectsReservation(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)

	validated, err := r.ValidateBook(false, "book not found", 0, uuid.Nil)
	require.NoError(t, err)
	apply(t, r, validated)
	assert.Equal(t, StatusRejected, r.Status)
	assert.True(t, r.Status.terminal())
}

func TestPaymentDeclinedRejectsReservation(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)
	validated, err := r.ValidateBook(true, "", 25, uuid.Nil)
	require.NoError(t, err)
	apply(t, r, validated)

	declined, err := r.DeclinePayment("insufficient funds", uuid.Nil)
	require.NoError(t, err)
	apply(t, r, declined)
	assert.Equal(t, StatusRejected, r.Status)
}

func TestOnTimeReturn(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)
	validated, _ := r.ValidateBook(true, "", 25, uuid.Nil)
	apply(t, r, validated)
	paid, _ := r.ConfirmPayment(3, uuid.Nil)
	apply(t, r, paid)

	returned, err := r.Return(now.Add(24*time.Hour), 0, 0)
	require.NoError(t, err)
	apply(t, r, returned)
	assert.Equal(t, StatusReturned, r.Status)
}

func TestLateReturnThenBrought(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)
	validated, _ := r.ValidateBook(true, "", 25, uuid.Nil)
	apply(t, r, validated)
	paid, _ := r.ConfirmPayment(3, uuid.Nil)
	apply(t, r, paid)

	overdue, err := r.MarkOverdue(now.AddDate(0, 0, 10), 5)
	require.NoError(t, err)
	apply(t, r, overdue)
	assert.Equal(t, StatusLate, r.Status)

	brought, err := r.MarkBrought(now.AddDate(0, 0, 10), 5, 25)
	require.NoError(t, err)
	apply(t, r, brought)
	assert.Equal(t, StatusBrought, r.Status)
	assert.True(t, r.Status.terminal())
}

func TestLateReturnWithinThreshold(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)
	validated, _ := r.ValidateBook(true, "", 25, uuid.Nil)
	apply(t, r, validated)
	paid, _ := r.ConfirmPayment(3, uuid.Nil)
	apply(t, r, paid)

	overdue, _ := r.MarkOverdue(now.AddDate(0, 0, 2), 2)
	apply(t, r, overdue)

	returned, err := r.Return(now.AddDate(0, 0, 2), 2, 0.4)
	require.NoError(t, err)
	apply(t, r, returned)
	assert.Equal(t, StatusReturned, r.Status)
}

func TestCancelOnlyFromReserved(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)

	_, err := r.Cancel("changed my mind", now)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindReservationCannotBeCancelled))

	validated, _ := r.ValidateBook(true, "", 25, uuid.Nil)
	apply(t, r, validated)
	paid, _ := r.ConfirmPayment(3, uuid.Nil)
	apply(t, r, paid)

	cancelled, err := r.Cancel("changed my mind", now)
	require.NoError(t, err)
	apply(t, r, cancelled)
	assert.Equal(t, StatusCancelled, r.Status)

	_, err = r.Cancel("again", now)
	require.Error(t, err)
}

// P6: the reservation state machine never reaches two terminal states.
func TestTerminalStatesAreExclusive(t *testing.T) {
	now := time.Now().UTC()
	r := newReservation(t, now)
	validated, _ := r.ValidateBook(false, "gone", 0, uuid.Nil)
	apply(t, r, validated)
	assert.True(t, r.Status.terminal())

	_, err := r.ValidateBook(true, "", 10, uuid.Nil)
	require.Error(t, err)
	_, err = r.Cancel("x", now)
	require.Error(t, err)
	_, err = r.Return(now, 0, 0)
	require.Error(t, err)
}

func TestDaysLate(t *testing.T) {
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysLate(due, due))
	assert.Equal(t, 0, DaysLate(due, due.Add(-time.Hour)))
	assert.Equal(t, 1, DaysLate(due, due.Add(time.Hour)))
	assert.Equal(t, 2, DaysLate(due, due.Add(25*time.Hour)))
}
