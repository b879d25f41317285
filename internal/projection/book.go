package projection

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/book"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

// BookRead is the denormalized Book read model row.
type BookRead struct {
	ID              string     `db:"id" json:"id"`
	ISBN            string     `db:"isbn" json:"isbn"`
	Title           string     `db:"title" json:"title"`
	Author          string     `db:"author" json:"author"`
	PublicationYear int        `db:"publication_year" json:"publicationYear"`
	Publisher       string     `db:"publisher" json:"publisher"`
	Price           float64    `db:"price" json:"price"`
	Version         int        `db:"version" json:"version"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt       *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// BookReadSchema creates the book_reads table.
const BookReadSchema = `
CREATE TABLE IF NOT EXISTS book_reads (
	id UUID PRIMARY KEY,
	isbn TEXT NOT NULL,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	publication_year INT NOT NULL,
	publisher TEXT NOT NULL,
	price NUMERIC NOT NULL,
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_book_reads_isbn ON book_reads(isbn) WHERE deleted_at IS NULL;
`

// RegisterBookHandlers wires the Book aggregate's events into e.
func RegisterBookHandlers(e *Engine) {
	e.Register(book.EventCreated, handleBookCreated)
	e.Register(book.EventUpdated, handleBookUpdated)
	e.Register(book.EventDeleted, handleBookDeleted)
}

func handleBookCreated(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p book.Created
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode BookCreated")
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO book_reads (id, isbn, title, author, publication_year, publisher, price, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.ISBN, p.Title, p.Author, p.PublicationYear, p.Publisher, p.Price, ev.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "insert book_reads")
	}
	return nil
}

func handleBookUpdated(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p book.Updated
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode BookUpdated")
	}

	set := map[string]interface{}{}
	for k, v := range p.Updated {
		switch k {
		case "title", "author", "publisher":
			set[k] = v
		case "publicationYear":
			if n, ok := v.(float64); ok {
				set["publication_year"] = int(n)
			}
		case "price":
			set["price"] = v
		}
	}
	if len(set) == 0 {
		return nil
	}

	query, args := buildVersionGatedUpdate("book_reads", ev.AggregateID.String(), ev.Version, set, "updated_at", p.UpdatedAt)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "update book_reads")
	}
	_, _ = res.RowsAffected()
	return nil
}

func handleBookDeleted(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p book.Deleted
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode BookDeleted")
	}
	_, err := db.ExecContext(ctx, `
		UPDATE book_reads SET deleted_at = $1, version = $2
		WHERE id = $3 AND version < $2
	`, p.DeletedAt, ev.Version, ev.AggregateID)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "soft-delete book_reads")
	}
	return nil
}
