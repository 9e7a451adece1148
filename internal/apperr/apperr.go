// Package apperr defines the sentinel error taxonomy shared by the
// orchestrator, executor, and HTTP API, in the style of an errors.Is-
// compatible "kind" error rather than ad hoc string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application-level failure.
type Kind string

const (
	KindUnknownDevice     Kind = "unknown_device"
	KindWrongKind         Kind = "wrong_kind"
	KindNotConnected      Kind = "not_connected"
	KindNotReachable      Kind = "not_reachable"
	KindNoStatusReceived  Kind = "no_status_received"
	KindInvalidArgs       Kind = "invalid_args"
	KindTimeout           Kind = "timeout"
	KindChecksumCollision Kind = "checksum_collision"
	KindConfigUpdateFailed Kind = "config_update_failed"
)

// Error is the concrete error type carried through the system. Two *Error
// values compare equal under errors.Is when they share a Kind, independent
// of their message or address.
type Error struct {
	Kind    Kind
	Message string
	Address string
	Cause   error
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Address)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is to compare *Error values by Kind alone, so callers can
// write errors.Is(err, apperr.ErrNotConnected) without caring about address
// or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind, preserving cause for
// errors.Unwrap.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithAddress returns a copy of e annotated with the peripheral address
// involved in the failure.
func (e *Error) WithAddress(address string) *Error {
	clone := *e
	clone.Address = address
	return &clone
}

// Sentinel values for use with errors.Is; only Kind participates in the
// comparison.
var (
	ErrUnknownDevice      = &Error{Kind: KindUnknownDevice}
	ErrWrongKind          = &Error{Kind: KindWrongKind}
	ErrNotConnected       = &Error{Kind: KindNotConnected}
	ErrNotReachable       = &Error{Kind: KindNotReachable}
	ErrNoStatusReceived   = &Error{Kind: KindNoStatusReceived}
	ErrInvalidArgs        = &Error{Kind: KindInvalidArgs}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrChecksumCollision  = &Error{Kind: KindChecksumCollision}
	ErrConfigUpdateFailed = &Error{Kind: KindConfigUpdateFailed}
)

// HTTPStatus projects a Kind onto the HTTP status code the httpapi layer
// should respond with.
func HTTPStatus(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindUnknownDevice:
		return http.StatusNotFound
	case KindWrongKind, KindInvalidArgs:
		return http.StatusBadRequest
	case KindNotConnected:
		return http.StatusBadRequest
	case KindNotReachable:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNoStatusReceived:
		return http.StatusInternalServerError
	case KindChecksumCollision, KindConfigUpdateFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
