package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/choreography"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/config"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/projection"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/reservation"
	"github.com/Merodami/book-library-tool-ddd-sub001/pkg/eventstore"
)

// ReservationsRouter mounts the Reservations service's command and query
// endpoints, including the synchronous return flow.
type ReservationsRouter struct {
	handler *command.ReservationHandler
	wallets *command.WalletHandler
	rStore  *eventstore.EventStore
	store   *projection.Store
	cfg     config.Config
}

// NewReservationsRouter builds a chi router for the Reservations service.
func NewReservationsRouter(handler *command.ReservationHandler, wallets *command.WalletHandler, rStore *eventstore.EventStore, store *projection.Store, cfg config.Config) http.Handler {
	rr := &ReservationsRouter{handler: handler, wallets: wallets, rStore: rStore, store: store, cfg: cfg}

	r := chi.NewRouter()
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", rr.create)
		r.Get("/", rr.list)
		r.Get("/{id}", rr.get)
		r.Post("/{id}/return", rr.returnBook)
		r.Post("/{id}/cancel", rr.cancel)
		r.Delete("/{id}", rr.delete)
	})
	return r
}

type createReservationRequest struct {
	UserID string `json:"userId"`
	BookID string `json:"bookId"`
}

func (rr *ReservationsRouter) create(w http.ResponseWriter, r *http.Request) {
	var in createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid userId"))
		return
	}
	bookID, err := uuid.Parse(in.BookID)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid bookId"))
		return
	}

	active, err := rr.hasActiveReservation(r.Context(), userID, bookID)
	if err != nil {
		writeError(w, err)
		return
	}
	if active {
		writeError(w, apperr.Newf(apperr.KindReservationDuplicate, "user %s already has an open reservation for book %s", userID, bookID))
		return
	}

	result, err := rr.handler.Create(r.Context(), userID, bookID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// hasActiveReservation reports whether the user already has a reservation on
// this book that has not yet reached a terminal status.
func (rr *ReservationsRouter) hasActiveReservation(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	var count int
	err := rr.store.DB.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM reservation_reads
		WHERE user_id = $1 AND book_id = $2 AND deleted_at IS NULL
		AND status NOT IN ($3, $4, $5, $6)
	`, userID, bookID,
		reservation.StatusRejected, reservation.StatusReturned, reservation.StatusCancelled, reservation.StatusBrought)
	if err != nil {
		return false, apperr.Wrap(apperr.KindDatabaseError, err, "check active reservation")
	}
	return count > 0, nil
}

func (rr *ReservationsRouter) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid reservation id"))
		return
	}

	var row projection.ReservationRead
	cacheKey := projection.CacheKey("reservation", id.String())
	err = rr.store.Cache.GetOrLoad(r.Context(), cacheKey, &row, func(ctx context.Context) (interface{}, error) {
		return loadReservation(ctx, rr.store, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func loadReservation(ctx context.Context, store *projection.Store, id uuid.UUID) (projection.ReservationRead, error) {
	var row projection.ReservationRead
	err := store.DB.GetContext(ctx, &row, `
		SELECT id, user_id, book_id, status, reserved_at, due_date, fee_charged, retail_price, version, updated_at, deleted_at
		FROM reservation_reads WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return projection.ReservationRead{}, apperr.Newf(apperr.KindReservationNotFound, "reservation %s not found", id)
	}
	return row, nil
}

func (rr *ReservationsRouter) list(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	page, limit = projection.ClampPage(page, limit, rr.cfg.PaginationDefaultLim, rr.cfg.PaginationMaxLimit)

	userIDFilter := r.URL.Query().Get("userId")

	var total int
	var rows []projection.ReservationRead
	offset := (page - 1) * limit

	var err error
	if userIDFilter != "" {
		err = rr.store.DB.GetContext(r.Context(), &total, `SELECT COUNT(*) FROM reservation_reads WHERE user_id = $1 AND deleted_at IS NULL`, userIDFilter)
		if err == nil {
			err = rr.store.DB.SelectContext(r.Context(), &rows, `
				SELECT id, user_id, book_id, status, reserved_at, due_date, fee_charged, retail_price, version, updated_at, deleted_at
				FROM reservation_reads WHERE user_id = $1 AND deleted_at IS NULL ORDER BY reserved_at DESC LIMIT $2 OFFSET $3
			`, userIDFilter, limit, offset)
		}
	} else {
		err = rr.store.DB.GetContext(r.Context(), &total, `SELECT COUNT(*) FROM reservation_reads WHERE deleted_at IS NULL`)
		if err == nil {
			err = rr.store.DB.SelectContext(r.Context(), &rows, `
				SELECT id, user_id, book_id, status, reserved_at, due_date, fee_charged, retail_price, version, updated_at, deleted_at
				FROM reservation_reads WHERE deleted_at IS NULL ORDER BY reserved_at DESC LIMIT $1 OFFSET $2
			`, limit, offset)
		}
	}
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindDatabaseError, err, "list reservations"))
		return
	}

	writeJSON(w, http.StatusOK, projection.Page{
		Data:       rows,
		Pagination: projection.NewPageInfo(total, page, limit),
	})
}

func (rr *ReservationsRouter) returnBook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid reservation id"))
		return
	}

	outcome, err := choreography.HandleReturn(r.Context(), rr.rStore, rr.handler, rr.wallets, id, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type cancelReservationRequest struct {
	Reason string `json:"reason"`
}

func (rr *ReservationsRouter) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid reservation id"))
		return
	}

	var in cancelReservationRequest
	_ = json.NewDecoder(r.Body).Decode(&in)

	result, err := rr.handler.Cancel(r.Context(), id, in.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rr *ReservationsRouter) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid reservation id"))
		return
	}

	result, err := rr.handler.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
