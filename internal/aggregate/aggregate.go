// Package aggregate provides the shared rehydration and uncommitted-event
// tracking every domain aggregate embeds.
package aggregate

import (
	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// Applier is implemented by every aggregate root. Apply must be a pure fold:
// given the current state and one historical event, it returns the next
// state with no side effects and no dependence on wall-clock time beyond
// what the event itself carries.
type Applier interface {
	Apply(e event.Envelope) error
}

// Base tracks identity, the version last persisted, and events raised by the
// current command but not yet appended to the store.
type Base struct {
	ID      uuid.UUID
	Version int

	uncommitted []event.Envelope
}

// Raise stages a new event and advances the in-memory version so that
// subsequent invariant checks within the same command see the effect.
func (b *Base) Raise(a Applier, e event.Envelope) error {
	if err := a.Apply(e); err != nil {
		return err
	}
	b.Version++
	b.uncommitted = append(b.uncommitted, e)
	return nil
}

// Uncommitted returns events raised since the aggregate was loaded or last
// saved, in raise order.
func (b *Base) Uncommitted() []event.Envelope {
	return b.uncommitted
}

// ClearUncommitted drops the staged events after a successful append.
func (b *Base) ClearUncommitted() {
	b.uncommitted = nil
}

// Rehydrate folds a historical event stream onto a zero-value aggregate by
// calling Apply for each event in version order and advancing Version and ID
// to match. It never calls Raise, so no new events are staged.
func Rehydrate(a Applier, base *Base, history []event.Envelope) error {
	for _, e := range history {
		if err := a.Apply(e); err != nil {
			return err
		}
		base.ID = e.AggregateID
		base.Version = e.Version
	}
	return nil
}
