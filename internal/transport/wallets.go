package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/command"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/config"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/projection"
)

// WalletsRouter mounts the Wallets service's command and query endpoints.
type WalletsRouter struct {
	handler *command.WalletHandler
	store   *projection.Store
	cfg     config.Config
}

// NewWalletsRouter builds a chi router for the Wallets service.
func NewWalletsRouter(handler *command.WalletHandler, store *projection.Store, cfg config.Config) http.Handler {
	wr := &WalletsRouter{handler: handler, store: store, cfg: cfg}

	r := chi.NewRouter()
	r.Route("/wallets", func(r chi.Router) {
		r.Post("/", wr.create)
		r.Get("/", wr.list)
		r.Get("/{id}", wr.get)
		r.Post("/{id}/credit", wr.credit)
		r.Post("/{id}/debit", wr.debit)
		r.Delete("/{id}", wr.delete)
	})
	return r
}

type createWalletRequest struct {
	UserID         string  `json:"userId"`
	InitialBalance float64 `json:"initialBalance"`
}

func (wr *WalletsRouter) create(w http.ResponseWriter, r *http.Request) {
	var in createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid userId"))
		return
	}

	result, err := wr.handler.Create(r.Context(), userID, in.InitialBalance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type walletAmountRequest struct {
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

func (wr *WalletsRouter) credit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid wallet id"))
		return
	}

	var in walletAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}

	result, err := wr.handler.Credit(r.Context(), id, in.Amount, in.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (wr *WalletsRouter) debit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid wallet id"))
		return
	}

	var in walletAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return
	}

	result, err := wr.handler.Debit(r.Context(), id, in.Amount, in.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (wr *WalletsRouter) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid wallet id"))
		return
	}

	result, err := wr.handler.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (wr *WalletsRouter) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid wallet id"))
		return
	}

	var row projection.WalletRead
	cacheKey := projection.CacheKey("wallet", id.String())
	err = wr.store.Cache.GetOrLoad(r.Context(), cacheKey, &row, func(ctx context.Context) (interface{}, error) {
		return loadWallet(ctx, wr.store, id)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func loadWallet(ctx context.Context, store *projection.Store, id uuid.UUID) (projection.WalletRead, error) {
	var row projection.WalletRead
	err := store.DB.GetContext(ctx, &row, `
		SELECT id, user_id, balance, version, updated_at, deleted_at
		FROM wallet_reads WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return projection.WalletRead{}, apperr.Newf(apperr.KindWalletNotFound, "wallet %s not found", id)
	}
	return row, nil
}

func (wr *WalletsRouter) list(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	page, limit = projection.ClampPage(page, limit, wr.cfg.PaginationDefaultLim, wr.cfg.PaginationMaxLimit)

	var total int
	if err := wr.store.DB.GetContext(r.Context(), &total, `SELECT COUNT(*) FROM wallet_reads WHERE deleted_at IS NULL`); err != nil {
		writeError(w, apperr.Wrap(apperr.KindDatabaseError, err, "count wallets"))
		return
	}

	var rows []projection.WalletRead
	offset := (page - 1) * limit
	err := wr.store.DB.SelectContext(r.Context(), &rows, `
		SELECT id, user_id, balance, version, updated_at, deleted_at
		FROM wallet_reads WHERE deleted_at IS NULL ORDER BY updated_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindDatabaseError, err, "list wallets"))
		return
	}

	writeJSON(w, http.StatusOK, projection.Page{
		Data:       rows,
		Pagination: projection.NewPageInfo(total, page, limit),
	})
}
