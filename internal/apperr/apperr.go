// Package apperr defines the error taxonomy shared by the store, scanner,
// dispatcher, and transport layers so transports can map failures to the
// right status code without string-matching error text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-level reporting.
type Kind string

const (
	NotFound    Kind = "not_found"
	Invalid     Kind = "invalid"
	IO          Kind = "io"
	Auth        Kind = "auth"
	Corruption  Kind = "corruption"
	Subprocess  Kind = "subprocess"
	Unsupported Kind = "unsupported"
)

// Error wraps an underlying cause with a Kind that callers can recover with
// errors.As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error from an existing error, attaching a kind and message.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// NotFoundf builds a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Invalidf builds an Invalid error with a formatted message.
func Invalidf(format string, args ...any) *Error {
	return New(Invalid, fmt.Sprintf(format, args...))
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
