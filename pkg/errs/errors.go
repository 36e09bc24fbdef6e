// Package errs defines the error taxonomy shared by the registry, the
// document store and the HTTP layer. Services return *Error values carrying
// a Code; the API maps each code onto a status.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies an error for callers.
type Code string

const (
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeValidation Code = "validation_failed"
	CodeForbidden  Code = "forbidden"
	CodeBadRequest Code = "bad_request"
	CodeInternal   Code = "internal"
)

// Sentinels returned by stores; services translate them into coded errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Error is a classified error. Violations is only set for CodeValidation.
type Error struct {
	Code       Code
	Message    string
	Violations []string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Validation builds a CodeValidation error whose message joins all
// violations in order.
func Validation(violations []string) *Error {
	return &Error{
		Code:       CodeValidation,
		Message:    "Validation errors: " + strings.Join(violations, "; "),
		Violations: violations,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// ViolationsOf returns the violation list carried by err, if any.
func ViolationsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}
