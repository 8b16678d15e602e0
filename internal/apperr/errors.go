package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error so the gateway can decide how to report it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindAuth          Kind = "auth"
	KindInternal      Kind = "internal"
)

// Error is a domain error carrying its taxonomy kind. Authentication errors
// are fatal to a connection; every other kind is reported back to the caller
// and the connection stays open.
type Error struct {
	Kind    Kind
	Message string
	// Missing lists unresolved identities for not-found errors raised by
	// bulk existence checks.
	Missing []string
}

func (e *Error) Error() string { return e.Message }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NotFoundIDs(missing []string, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Missing: missing}
}

func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
