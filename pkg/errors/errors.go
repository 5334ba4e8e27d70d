// Package errors provides the coded error taxonomy for objectwatch pipelines.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code string

const (
	// CodeSourceUnavailable marks a backend that could not establish or
	// maintain its subscription. Fatal to the pipeline instance; retrying
	// is the caller's decision.
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"

	// CodeSinkFailure marks a hard failure emitting to the publishing
	// sink. Fatal to the publish loop; events are never silently dropped.
	CodeSinkFailure Code = "SINK_FAILURE"

	// CodeInvalidConfig marks a configuration that fails validation.
	CodeInvalidConfig Code = "INVALID_CONFIG"

	// CodeInvalidPattern marks a metadata pattern that cannot be compiled.
	CodeInvalidPattern Code = "INVALID_PATTERN"
)

// Error is a coded error with an optional cause. It supports errors.Is
// matching on both the code (via another *Error with the same code) and the
// wrapped cause chain.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates a coded error without a cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error around a cause. Returns nil when cause is nil.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so callers can test for a class of
// failure with errors.Is(err, &Error{Code: CodeSinkFailure}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
