// Package apperr classifies failures into the small set of kinds the HTTP
// layer knows how to render. Collaborator errors never cross the service
// boundary unclassified.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindUpstream
)

var codes = map[Kind]string{
	KindInternal:     "INTERNAL",
	KindValidation:   "VALIDATION_FAILED",
	KindUnauthorized: "UNAUTHORIZED",
	KindForbidden:    "FORBIDDEN",
	KindNotFound:     "NOT_FOUND",
	KindConflict:     "CONFLICT",
	KindRateLimited:  "RATE_LIMITED",
	KindUpstream:     "UPSTREAM_UNAVAILABLE",
}

func (k Kind) Code() string {
	return codes[k]
}

func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is safe to show to clients: Message never carries the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set on rate-limit errors, in seconds.
	RetryAfter int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }

func RateLimited(retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: "too many requests, slow down", RetryAfter: retryAfter}
}

func Upstream(message string, err error) *Error {
	return Wrap(KindUpstream, message, err)
}

// Internal wraps an unexpected failure. A missed deadline is reported as an
// unavailable dependency so callers know the request may be retried.
func Internal(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Upstream("store unavailable, please try again", err)
	}
	return Wrap(KindInternal, "internal error", err)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From classifies err. Unclassified errors become internal errors.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
