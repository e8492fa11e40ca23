// Package apierr defines the error vocabulary shared by the engine, record
// API, and access evaluator. Handlers in internal/api translate these into
// HTTP responses; nothing downstream of a handler should need to inspect an
// error kind more precisely than this.
package apierr

import (
	"errors"
	"fmt"
)

// Code classifies an error for HTTP status mapping. Zero value is unset and
// must never be returned to a caller.
type Code int

const (
	_ Code = iota
	CodeBadRequest
	CodeUnauthorized
	CodeForbidden
	CodeNotFound
	CodeConflict
	CodeInternal
)

// Error is the error type returned across component boundaries (params,
// access, recordapi, engine). Internal causes are wrapped but only surfaced
// in logs; Message is what a handler is allowed to put in a response body.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func new_(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

func BadRequest(format string, args ...any) *Error {
	return new_(CodeBadRequest, fmt.Sprintf(format, args...), nil)
}

func Unauthorized(msg string) *Error {
	return new_(CodeUnauthorized, msg, nil)
}

// Forbidden never takes a reason argument: the response shape must be
// identical whether a table-level ACL or a row-level rule denied the
// request, so there is nothing caller-specific to print (spec.md §7).
func Forbidden() *Error {
	return new_(CodeForbidden, "Forbidden", nil)
}

func NotFound(msg string) *Error {
	if msg == "" {
		msg = "not found"
	}
	return new_(CodeNotFound, msg, nil)
}

func Conflict(msg string) *Error {
	return new_(CodeConflict, msg, nil)
}

// Internal wraps cause but never exposes it; handlers render a generic
// message and log the cause with context.
func Internal(cause error) *Error {
	return new_(CodeInternal, "internal error", cause)
}

// As is a thin errors.As wrapper used by handlers so they don't need to
// import "errors" just for this one check.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
