// Package apierr is the error taxonomy shared by the test generator services.
// Components return *Error values so request handlers can map failures to a
// status code without inspecting message text.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Config     Kind = "config"
	Validation Kind = "validation"
	Parse      Kind = "parse"
	Auth       Kind = "auth"
	Inference  Kind = "inference"
	NotFound   Kind = "not_found"
)

// Error is a classified failure. Retryable marks transient causes
// (network errors, upstream 5xx); it is informational, nothing retries on it
// except the IAM exchange.
type Error struct {
	Kind      Kind
	Msg       string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Transient is Wrap with Retryable set.
func Transient(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err, Retryable: true}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// HTTPStatus maps err to the status a handler should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
