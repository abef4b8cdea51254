// Package apperr defines the error taxonomy shared by every domain
// component and the HTTP/WS adapters that translate it into responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds named in the HTTP error envelope.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidState  Kind = "invalid_state"
	KindBalanceError  Kind = "balance_error"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindRateLimited   Kind = "rate_limited"
	KindQueueFull     Kind = "queue_full"
	KindQueueTimeout  Kind = "queue_timeout"
	KindStorageBusy   Kind = "storage_busy"
	KindStorageError  Kind = "storage_error"
	KindSafetyBlocked Kind = "safety_blocked"
	KindInternal      Kind = "internal"
)

// Error is the single structured error type every domain component returns.
// It mirrors the shape of the teacher's common.EntityNotFoundError /
// common.ValidationError family: a Kind, a human Message, and an optional
// wrapped cause.
type Error struct {
	Kind        Kind
	Message     string
	RetryAfterS float64 // only meaningful for KindRateLimited
	Boundary    string  // only meaningful for KindSafetyBlocked
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func InvalidInput(msg string, args ...any) *Error {
	return new_(KindInvalidInput, fmt.Sprintf(msg, args...))
}

func InvalidState(msg string, args ...any) *Error {
	return new_(KindInvalidState, fmt.Sprintf(msg, args...))
}

func Balance(msg string, args ...any) *Error {
	return new_(KindBalanceError, fmt.Sprintf(msg, args...))
}

func NotFound(msg string, args ...any) *Error {
	return new_(KindNotFound, fmt.Sprintf(msg, args...))
}

func Unauthorized(msg string) *Error { return new_(KindUnauthorized, msg) }

func Forbidden(msg string) *Error { return new_(KindForbidden, msg) }

func RateLimited(retryAfterS float64) *Error {
	return &Error{
		Kind:        KindRateLimited,
		Message:     fmt.Sprintf("previše zahtjeva, pokušajte za %.0f s", retryAfterS),
		RetryAfterS: retryAfterS,
	}
}

func QueueFull(msg string) *Error { return new_(KindQueueFull, msg) }

func QueueTimeout(msg string) *Error { return new_(KindQueueTimeout, msg) }

func StorageBusy(msg string) *Error { return new_(KindStorageBusy, msg) }

func Storage(err error) *Error {
	return &Error{Kind: KindStorageError, Message: "storage write failed", Err: err}
}

func SafetyBlocked(boundary, reason string) *Error {
	return &Error{Kind: KindSafetyBlocked, Message: reason, Boundary: boundary}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// As is a thin convenience wrapper over errors.As for callers that want to
// inspect the Kind of an error that may have been wrapped along the way.
func As(err error) (*Error, bool) {
	var e *Error

	ok := errors.As(err, &e)

	return e, ok
}
