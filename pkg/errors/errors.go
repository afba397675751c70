// Package errors provides the structured error type shared by every
// LearnHub auth package. Each error carries a machine-readable [Code], a
// message that is safe to show to API clients, an optional cause that is
// only ever logged, and optional structured details.
//
// # Categories
//
// The code prefix selects the error category and therefore the HTTP status
// returned at the API boundary:
//
//   - VAL     request input rejected (400)
//   - AUTH    token or credential problems (401)
//   - AUTHZ   authenticated but not allowed (403)
//   - NF      resource does not exist (404)
//   - CONF    uniqueness or state conflicts (409)
//   - RATE    throttled by a rate limiter (429)
//   - INT     internal failures (500)
//   - UNAVAIL dependency temporarily unavailable (503)
//   - TIMEOUT deadline exceeded (504)
//
// # Usage
//
//	err := errors.New(errors.CodeRateLimited, "rate limit")
//
//	if errors.HasCode(err, errors.CodeConflictAlreadyExists) {
//	    // another request created the row first
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    slog.Error("request failed", "code", e.Code, "cause", e.Cause)
//	}
//
// The package is conventionally imported as sserr so it does not shadow
// the standard library errors package.
package errors
