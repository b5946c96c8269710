package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies an engine error. Every kind maps to exactly one HTTP status.
type ErrorKind string

const (
	KindValidation     ErrorKind = "VALIDATION"
	KindConflict       ErrorKind = "CONFLICT"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindForbidden      ErrorKind = "FORBIDDEN"
	KindIncompleteScan ErrorKind = "INCOMPLETE_SCAN"
)

// Status returns the HTTP status code associated with the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindValidation, KindIncompleteScan:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error returned by every engine operation for a
// failure the caller can act on. Data carries the structured payload
// (availability report, missing-scan lists) that accompanies CONFLICT and
// INCOMPLETE_SCAN errors. Anything that is not an *Error is an internal failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Data    any
}

func (e *Error) Error() string {
	return e.Message
}

// Status returns the HTTP status code for the error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

func newError(kind ErrorKind, data any, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Message: msg, Data: data}
}

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return newError(KindForbidden, nil, format, args...)
}

// Conflict builds a CONFLICT error carrying data (usually an *AvailabilityReport).
func Conflict(data any, format string, args ...any) *Error {
	return newError(KindConflict, data, format, args...)
}

// IncompleteScan builds an INCOMPLETE_SCAN error carrying the missing lists.
func IncompleteScan(data any, format string, args ...any) *Error {
	return newError(KindIncompleteScan, data, format, args...)
}

// AsError unwraps err into an engine *Error if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
