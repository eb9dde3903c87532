// Package apperr defines the error taxonomy shared by every core component.
// Components return these values (wrapped with errors.Is-compatible sentinels)
// instead of HTTP status codes; pkg/api is the only layer that knows about
// status codes.
package apperr

import "errors"

// Kind identifies which bucket of the taxonomy an error belongs to.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindAuthRequired   Kind = "auth_required"
	KindSessionBlocked Kind = "session_blocked"
	KindForbidden      Kind = "forbidden"
	KindInvalidInput   Kind = "invalid_input"
	KindDuplicate      Kind = "duplicate"
	KindInternal       Kind = "internal"
)

// Error wraps an underlying cause with a Kind used for HTTP-status mapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel errors for cases that don't need a custom message at the call site.
var (
	ErrConfigNotFound  = New(KindNotFound, "config not found")
	ErrSessionNotFound = New(KindNotFound, "session not found")
	ErrNotAMember      = New(KindForbidden, "not a member of this chat group")
)
