package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers rejected input: empty item text, empty or
	// duplicate team member names, malformed commands.
	KindValidation
	// KindNotFound covers joining a nonexistent session or mutating a
	// missing item.
	KindNotFound
	// KindForbidden covers permission gate denials.
	KindForbidden
	// KindRemoteUnavailable covers a missing or unreachable replicated
	// store. Local mutations still succeed when this is returned from a
	// sync path.
	KindRemoteUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindRemoteUnavailable:
		return "remote_unavailable"
	default:
		return "unknown"
	}
}

// Error is a typed application error carrying one taxonomy kind.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Validationf builds a KindValidation error.
func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Forbiddenf builds a KindForbidden error.
func Forbiddenf(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

// RemoteUnavailablef builds a KindRemoteUnavailable error.
func RemoteUnavailablef(format string, args ...any) *Error {
	return newError(KindRemoteUnavailable, format, args...)
}

// RemoteUnavailable wraps an underlying store error.
func RemoteUnavailable(msg string, err error) *Error {
	return &Error{kind: KindRemoteUnavailable, msg: msg, err: err}
}

// KindOf returns the kind carried by err, or KindUnknown when err is not
// an application error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind()
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
