// Package apperrors defines the error kinds surfaced by the assistant
// pipeline. Kinds are stable strings; callers branch on them, never on
// message text.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, machine-readable error category.
type Kind string

const (
	KindUnknownCategory   Kind = "UNKNOWN_CATEGORY"
	KindSourceUnavailable Kind = "SOURCE_UNAVAILABLE"
	KindIntentParse       Kind = "INTENT_PARSE_ERROR"
	KindUpstreamTimeout   Kind = "UPSTREAM_TIMEOUT"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindUpstream          Kind = "UPSTREAM_ERROR"
	KindInternal          Kind = "INTERNAL"
)

// Error is a structured application error.
type Error struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, retryable bool, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable,
		cause:     cause,
	}
}

func UnknownCategory(format string, args ...any) *Error {
	return newError(KindUnknownCategory, false, nil, format, args...)
}

func SourceUnavailable(cause error, format string, args ...any) *Error {
	return newError(KindSourceUnavailable, true, cause, format, args...)
}

func IntentParse(cause error, format string, args ...any) *Error {
	return newError(KindIntentParse, true, cause, format, args...)
}

func UpstreamTimeout(cause error, format string, args ...any) *Error {
	return newError(KindUpstreamTimeout, true, cause, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, false, nil, format, args...)
}

func Upstream(cause error, format string, args ...any) *Error {
	return newError(KindUpstream, true, cause, format, args...)
}

func Internal(cause error, format string, args ...any) *Error {
	return newError(KindInternal, false, cause, format, args...)
}

// FromUpstream classifies a language-model transport failure. Deadline
// expiry becomes UpstreamTimeout, everything else UpstreamError.
func FromUpstream(err error, stage string) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout(err, "%s timed out", stage)
	}
	return Upstream(err, "%s failed", stage)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As converts any error into an *Error without exposing its internals.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err, "internal error")
}

// HTTPStatus maps a kind onto the response status used by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnknownCategory, KindInvalidInput:
		return http.StatusBadRequest
	case KindIntentParse:
		return http.StatusUnprocessableEntity
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstream, KindSourceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
