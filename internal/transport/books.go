package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/book"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/config"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/projection"
)

// BooksRouter mounts the Book service's command and query endpoints.
type BooksRouter struct {
	handler *command.BookHandler
	store   *projection.Store
	cfg     config.Config
}

// NewBooksRouter builds a chi router for the Books service.
func NewBooksRouter(handler *command.BookHandler, store *projection.Store, cfg config.Config) http.Handler {
	br := &BooksRouter{handler: handler, store: store, cfg: cfg}

	r := chi.NewRouter()
	r.Route("/books", func(r chi.Router) {
		r.Post("/", br.create)
		r.Get("/", br.list)
		r.Get("/{id}", br.get)
		r.Patch("/{id}", br.update)
		r.Delete("/{id}", br.delete)
	})
	return r
}

func (br *BooksRouter) create(w http.ResponseWriter, r *http.Request) {
	var in book.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}

	result, err := br.handler.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (br *BooksRouter) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid book id"))
		return
	}

	var in book.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}

	result, err := br.handler.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (br *BooksRouter) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid book id"))
		return
	}

	result, err := br.handler.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (br *BooksRouter) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid book id"))
		return
	}

	var row projection.BookRead
	cacheKey := projection.CacheKey("book", id.String())
	err = br.store.Cache.GetOrLoad(r.Context(), cacheKey, &row, func(ctx context.Context) (interface{}, error) {
		return loadBook(ctx, br.store, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (br *BooksRouter) list(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	page, limit = projection.ClampPage(page, limit, br.cfg.PaginationDefaultLim, br.cfg.PaginationMaxLimit)

	var total int
	if err := br.store.DB.GetContext(r.Context(), &total, `SELECT COUNT(*) FROM book_reads WHERE deleted_at IS NULL`); err != nil {
		writeError(w, apperr.Wrap(apperr.KindDatabaseError, err, "count books"))
		return
	}

	var rows []projection.BookRead
	offset := (page - 1) * limit
	err := br.store.DB.SelectContext(r.Context(), &rows, `
		SELECT id, isbn, title, author, publication_year, publisher, price, version, created_at, updated_at, deleted_at
		FROM book_reads WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindDatabaseError, err, "list books"))
		return
	}

	writeJSON(w, http.StatusOK, projection.Page{
		Data:       rows,
		Pagination: projection.NewPageInfo(total, page, limit),
	})
}

func loadBook(ctx context.Context, store *projection.Store, id uuid.UUID) (projection.BookRead, error) {
	var row projection.BookRead
	err := store.DB.GetContext(ctx, &row, `
		SELECT id, isbn, title, author, publication_year, publisher, price, version, created_at, updated_at, deleted_at
		FROM book_reads WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return projection.BookRead{}, apperr.Newf(apperr.KindBookNotFound, "book %s not found", id)
	}
	return row, nil
}
