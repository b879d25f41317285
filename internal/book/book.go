// Package book implements the Book aggregate: a catalog entry with
// immutable identity, editable bibliographic data, and a one-way delete.
package book

import (
	"time"

	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/aggregate"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// Book is the rehydrated, in-memory state of one catalog entry.
type Book struct {
	aggregate.Base

	ISBN            string
	Title           string
	Author          string
	PublicationYear int
	Publisher       string
	Price           float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Deleted         bool
	DeletedAt       time.Time
}

// New returns a zero-value Book ready for rehydration or creation.
func New() *Book {
	return &Book{}
}

// Apply folds one historical event onto the aggregate. It is pure: it must
// never consult wall-clock time or any value not carried by e itself.
func (b *Book) Apply(e event.Envelope) error {
	switch e.EventType {
	case EventCreated:
		var p Created
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode BookCreated")
		}
		b.ID = p.ID
		b.ISBN = p.ISBN
		b.Title = p.Title
		b.Author = p.Author
		b.PublicationYear = p.PublicationYear
		b.Publisher = p.Publisher
		b.Price = p.Price
		b.CreatedAt = p.CreatedAt
		b.UpdatedAt = p.UpdatedAt
	case EventUpdated:
		var p Updated
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode BookUpdated")
		}
		applyUpdatedFields(b, p.Updated)
		b.UpdatedAt = p.UpdatedAt
	case EventDeleted:
		var p Deleted
		if err := e.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "decode BookDeleted")
		}
		b.Deleted = true
		b.DeletedAt = p.DeletedAt
	default:
		return apperr.Newf(apperr.KindInternal, "unknown book event type %q", e.EventType)
	}
	return nil
}

func applyUpdatedFields(b *Book, fields map[string]interface{}) {
	if v, ok := fields["title"].(string); ok {
		b.Title = v
	}
	if v, ok := fields["author"].(string); ok {
		b.Author = v
	}
	if v, ok := fields["publisher"].(string); ok {
		b.Publisher = v
	}
	if v, ok := fields["publicationYear"].(float64); ok {
		b.PublicationYear = int(v)
	}
	if v, ok := fields["price"].(float64); ok {
		b.Price = v
	}
}

// CreateInput is the shape-validated payload for Create.
type CreateInput struct {
	ISBN            string
	Title           string
	Author          string
	PublicationYear int
	Publisher       string
	Price           float64
}

// Create produces a BookCreated event for a brand-new aggregate. The
// handler is responsible for first proving uniqueness of ISBN via the event
// store's secondary-key lookup; Create itself only enforces field invariants.
func Create(id uuid.UUID, in CreateInput, now time.Time) (event.Envelope, error) {
	if in.Title == "" || in.Author == "" || in.Publisher == "" {
		return event.Envelope{}, apperr.New(apperr.KindValidation, "title, author and publisher are required")
	}
	if in.Price < 0 {
		return event.Envelope{}, apperr.New(apperr.KindValidation, "price must be non-negative")
	}
	if in.PublicationYear < 1450 || in.PublicationYear > now.Year()+1 {
		return event.Envelope{}, apperr.New(apperr.KindValidation, "publicationYear out of range")
	}

	payload := Created{
		ID:              id,
		ISBN:            in.ISBN,
		Title:           in.Title,
		Author:          in.Author,
		PublicationYear: in.PublicationYear,
		Publisher:       in.Publisher,
		Price:           in.Price,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return event.New(id, "book", EventCreated, payload, uuid.Nil)
}

// UpdateInput holds the candidate new values; zero-valued fields are
// diff-ignored by Update unless explicitly present via the pointer fields.
type UpdateInput struct {
	Title           *string
	Author          *string
	Publisher       *string
	PublicationYear *int
	Price           *float64
}

// Update computes a BookUpdated event containing only the fields that
// actually changed relative to the current aggregate state.
func (b *Book) Update(in UpdateInput, now time.Time) (event.Envelope, error) {
	if b.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindBookAlreadyDeleted, "book has been deleted")
	}

	previous := map[string]interface{}{}
	updated := map[string]interface{}{}

	if in.Title != nil && *in.Title != b.Title {
		previous["title"] = b.Title
		updated["title"] = *in.Title
	}
	if in.Author != nil && *in.Author != b.Author {
		previous["author"] = b.Author
		updated["author"] = *in.Author
	}
	if in.Publisher != nil && *in.Publisher != b.Publisher {
		previous["publisher"] = b.Publisher
		updated["publisher"] = *in.Publisher
	}
	if in.PublicationYear != nil && *in.PublicationYear != b.PublicationYear {
		previous["publicationYear"] = b.PublicationYear
		updated["publicationYear"] = *in.PublicationYear
	}
	if in.Price != nil && *in.Price != b.Price {
		if *in.Price < 0 {
			return event.Envelope{}, apperr.New(apperr.KindValidation, "price must be non-negative")
		}
		previous["price"] = b.Price
		updated["price"] = *in.Price
	}

	return event.New(b.ID, "book", EventUpdated, Updated{
		Previous:  previous,
		Updated:   updated,
		UpdatedAt: now,
	}, uuid.Nil)
}

// Delete produces a BookDeleted event, rejecting a book already deleted.
func (b *Book) Delete(now time.Time) (event.Envelope, error) {
	if b.Deleted {
		return event.Envelope{}, apperr.New(apperr.KindBookAlreadyDeleted, "book already deleted")
	}
	return event.New(b.ID, "book", EventDeleted, Deleted{DeletedAt: now}, uuid.Nil)
}
