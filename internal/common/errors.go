package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service errors for the HTTP layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindConflict
	KindBadRequest
	KindUnauthorized
	KindForbidden
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a terminal, client-visible service error. Message is safe to show
// to callers; Code is an optional machine-readable signal (e.g. EMAIL_NOT_VERIFIED).
type Error struct {
	Kind    ErrorKind
	Message string
	Code    string
}

// Error returns the client-visible message. Kind and Code stay out of the
// string so callers can match on the message alone.
func (e *Error) Error() string {
	return e.Message
}

// WithCode returns a copy of e carrying the given code.
func (e *Error) WithCode(code string) *Error {
	c := *e
	c.Code = code
	return &c
}

func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func BadRequest(msg string) *Error   { return &Error{Kind: KindBadRequest, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }

// BadRequestf formats a BadRequest message.
func BadRequestf(format string, args ...any) *Error {
	return BadRequest(fmt.Sprintf(format, args...))
}

// Unauthorizedf formats an Unauthorized message.
func Unauthorizedf(format string, args ...any) *Error {
	return Unauthorized(fmt.Sprintf(format, args...))
}

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a service error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// AsError extracts the service error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
