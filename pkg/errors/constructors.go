package errors

import (
	"errors"
	"fmt"
)

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches err as the cause of a new Error. Wrap(nil, ...) is nil.
//
//	if err := row.Scan(&id); err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "store: scan user")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation creates a CodeValidation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a CodeValidation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// NotFound creates a CodeNotFound error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Unauthorized creates a CodeAuthentication error.
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// RateLimited creates a CodeRateLimited error.
func RateLimited(message string) *Error {
	return New(CodeRateLimited, message)
}

// Conflict creates a CodeConflict error.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// Internal creates a CodeInternal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Unavailable creates a CodeUnavailable error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// FromError returns err as an *Error, wrapping anything else as an
// internal error with a generic message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
