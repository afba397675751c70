package errors

import (
	"fmt"
	"maps"
	"net/http"
)

// Error is the structured error returned by LearnHub packages.
//
// Message is what API clients see, so it must stay generic. Cause and
// Details exist for logs and traces only.
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_010").
	Code Code

	// Message is the client-safe description.
	Message string

	// Cause is the underlying error, reachable through errors.Unwrap.
	Cause error

	// Details holds structured context for operators.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause so errors.Is and errors.As see through Error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code. This lets
// package-level sentinels be matched with errors.Is regardless of the
// message or cause attached at the failure site.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the code category to an HTTP status.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryAuthentication:
		return http.StatusUnauthorized
	case CategoryAuthorization:
		return http.StatusForbidden
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict:
		return http.StatusConflict
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryUnavailable:
		return http.StatusServiceUnavailable
	case CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of e with details merged in. e is unchanged.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(merged, e.Details)
	maps.Copy(merged, details)
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: merged,
	}
}

// WithDetail returns a copy of e with one extra detail. e is unchanged.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// Format implements fmt.Formatter. %+v prints code, message, details and
// the full cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
