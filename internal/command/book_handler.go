package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/book"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

// BookHandler executes commands against the Book aggregate.
type BookHandler struct {
	store     *eventstore.EventStore
	publisher Publisher
}

// NewBookHandler wires a Book command handler to its store and bus.
func NewBookHandler(store *eventstore.EventStore, publisher Publisher) *BookHandler {
	return &BookHandler{store: store, publisher: publisher}
}

// Result is the outcome of a successful command: the aggregate's identity
// and the version it now sits at.
type Result struct {
	AggregateID uuid.UUID
	Version     int
}

// Create adds a new book to the catalog after proving no prior book shares
// its ISBN.
func (h *BookHandler) Create(ctx context.Context, in book.CreateInput) (Result, error) {
	existing, err := h.store.FindLatestByPayloadField(ctx, book.EventCreated, "isbn", in.ISBN)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{}, apperr.Newf(apperr.KindBookAlreadyExists, "book with isbn %q already exists", in.ISBN)
	}

	id := uuid.New()
	now := time.Now().UTC()
	ev, err := book.Create(id, in, now)
	if err != nil {
		return Result{}, err
	}

	evs := []event.Envelope{ev}
	if err := h.store.Append(ctx, id, "book", 0, evs); err != nil {
		return Result{}, err
	}
	ev = evs[0]
	h.publish(ctx, ev)

	return Result{AggregateID: id, Version: ev.Version}, nil
}

// Update applies a partial field change to an existing book.
func (h *BookHandler) Update(ctx context.Context, id uuid.UUID, in book.UpdateInput) (Result, error) {
	b, err := h.loadBook(ctx, id)
	if err != nil {
		return Result{}, err
	}

	ev, err := b.Update(in, time.Now().UTC())
	if err != nil {
		return Result{}, err
	}

	evs := []event.Envelope{ev}
	if err := h.store.Append(ctx, id, "book", b.Version, evs); err != nil {
		return Result{}, err
	}
	ev = evs[0]
	h.publish(ctx, ev)

	return Result{AggregateID: id, Version: ev.Version}, nil
}

// Delete retires a book from the catalog.
func (h *BookHandler) Delete(ctx context.Context, id uuid.UUID) (Result, error) {
	b, err := h.loadBook(ctx, id)
	if err != nil {
		return Result{}, err
	}

	ev, err := b.Delete(time.Now().UTC())
	if err != nil {
		return Result{}, err
	}

	evs := []event.Envelope{ev}
	if err := h.store.Append(ctx, id, "book", b.Version, evs); err != nil {
		return Result{}, err
	}
	ev = evs[0]
	h.publish(ctx, ev)

	return Result{AggregateID: id, Version: ev.Version}, nil
}

func (h *BookHandler) loadBook(ctx context.Context, id uuid.UUID) (*book.Book, error) {
	history, err := h.store.ReadStream(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, apperr.Newf(apperr.KindBookNotFound, "book %s not found", id)
	}
	b := book.New()
	if err := aggregate.Rehydrate(b, &b.Base, history); err != nil {
		return nil, err
	}
	return b, nil
}

// publish is best-effort from the command handler's point of view: delivery
// is at-least-once and the caller's operation already succeeded once the
// event is durably appended.
func (h *BookHandler) publish(ctx context.Context, ev event.Envelope) {
	if h.publisher == nil {
		return
	}
	_ = h.publisher.Publish(ctx, ev)
}
