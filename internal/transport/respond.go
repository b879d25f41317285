// Package transport provides the thin chi-based HTTP layer each service
// mounts in front of its command handlers and query-projection store.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body shape returned for any failed request.
type errorResponse struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError maps an apperr.Kind to an HTTP status code and writes the
// standard error body. Non-apperr errors are treated as internal.
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*apperr.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Kind:    string(apperr.KindInternal),
			Message: err.Error(),
		})
		return
	}

	writeJSON(w, statusFor(appErr.Kind), errorResponse{
		Kind:    string(appErr.Kind),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindBookNotFound, apperr.KindReservationNotFound, apperr.KindWalletNotFound, apperr.KindURLNotFound:
		return http.StatusNotFound
	case apperr.KindBookAlreadyExists, apperr.KindConcurrencyConflict, apperr.KindDuplicateEvent, apperr.KindReservationDuplicate:
		return http.StatusConflict
	case apperr.KindBookAlreadyDeleted:
		return http.StatusGone
	case apperr.KindValidation,
		apperr.KindReservationCannotBeReturned,
		apperr.KindReservationCannotBeCancelled,
		apperr.KindReservationCannotBeConfirmed,
		apperr.KindReservationCannotBeRejected,
		apperr.KindWalletInsufficientFunds:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
