// Package apperr implements the error-kind taxonomy shared by every command
// handler, projection handler and bus consumer in the engine.
package apperr

import "fmt"

// Kind tags an error with the category a caller needs to react to. It is
// deliberately not a Go error type hierarchy — handlers switch on Kind, not
// on concrete error values.
type Kind string

const (
	// Domain (4xx-equivalent)
	KindBookNotFound                 Kind = "BOOK_NOT_FOUND"
	KindBookAlreadyExists             Kind = "BOOK_ALREADY_EXISTS"
	KindBookAlreadyDeleted            Kind = "BOOK_ALREADY_DELETED"
	KindReservationNotFound          Kind = "RESERVATION_NOT_FOUND"
	KindReservationCannotBeReturned   Kind = "RESERVATION_CANNOT_BE_RETURNED"
	KindReservationCannotBeCancelled  Kind = "RESERVATION_CANNOT_BE_CANCELLED"
	KindReservationCannotBeConfirmed  Kind = "RESERVATION_CANNOT_BE_CONFIRMED"
	KindReservationCannotBeRejected   Kind = "RESERVATION_CANNOT_BE_REJECTED"
	KindReservationDuplicate          Kind = "RESERVATION_DUPLICATE_RESERVATION"
	KindWalletNotFound                Kind = "WALLET_NOT_FOUND"
	KindWalletInsufficientFunds       Kind = "WALLET_INSUFFICIENT_FUNDS"
	KindValidation                    Kind = "VALIDATION_ERROR"

	// Concurrency
	KindConcurrencyConflict Kind = "CONCURRENCY_CONFLICT"
	KindDuplicateEvent      Kind = "DUPLICATE_EVENT"

	// Infrastructure (5xx-equivalent)
	KindEventSaveFailed       Kind = "EVENT_SAVE_FAILED"
	KindEventLookupFailed     Kind = "EVENT_LOOKUP_FAILED"
	KindDatabaseError         Kind = "DATABASE_ERROR"
	KindPaymentProcessingError Kind = "PAYMENT_PROCESSING_ERROR"
	KindInternal              Kind = "INTERNAL_ERROR"

	// Boundary (produced outside the core; listed for completeness)
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindRateLimitExceeded Kind = "RATE_LIMIT_EXCEEDED"
	KindURLNotFound       Kind = "URL_NOT_FOUND"
)

// Error is the error value returned across the command-handler boundary.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a kind-tagged error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying infrastructure error.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured details and returns the same error for chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if ok := asAppErr(err, &ae); ok {
		return ae.Kind == kind
	}
	return false
}

func asAppErr(err error, target **Error) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retryable reports whether the error kind is safe to retry at the
// orchestration level (concurrency conflicts only — infrastructure errors
// are never retried inside a handler per spec).
func Retryable(err error) bool {
	return Is(err, KindConcurrencyConflict)
}
