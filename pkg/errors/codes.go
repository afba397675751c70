package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes
// are stable once assigned; clients and alerting rules may match on them.
type Code string

// Category prefixes. Kept as constants so callers never compare against
// string literals.
const (
	CategoryValidation     = "VAL"
	CategoryAuthentication = "AUTH"
	CategoryAuthorization  = "AUTHZ"
	CategoryNotFound       = "NF"
	CategoryConflict       = "CONF"
	CategoryRateLimit      = "RATE"
	CategoryInternal       = "INT"
	CategoryUnavailable    = "UNAVAIL"
	CategoryTimeout        = "TIMEOUT"
)

// Validation errors (400).
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeOTPInvalid is returned when an SMS code does not match, is
	// expired, was already used, or its attempt budget is exhausted. The
	// reasons are deliberately not distinguished.
	CodeOTPInvalid Code = "VAL_010"

	// CodeExchangeCodeInvalid is returned when a one-time login exchange
	// code or an OAuth state value is unknown or already used.
	CodeExchangeCodeInvalid Code = "VAL_011"
)

// Authentication errors (401).
const (
	// CodeAuthentication indicates a general authentication failure, such
	// as a protected endpoint reached without credentials.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates an expired credential.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a malformed credential.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeTokenVerification is the single user-facing error for any
	// failure while verifying an externally issued bearer token.
	CodeTokenVerification Code = "AUTH_010"

	// CodeKeyFetch indicates the JWKS endpoint could not be fetched or
	// decoded. It is transient.
	CodeKeyFetch Code = "AUTH_011"

	// CodeKeyNotFound indicates a key id is absent from the JWKS even
	// after a forced refresh.
	CodeKeyNotFound Code = "AUTH_012"

	// CodeLegacyToken indicates a self-issued access token failed to
	// decode or carried the wrong token type.
	CodeLegacyToken Code = "AUTH_013"

	// CodeRefreshTokenInvalid indicates a refresh token is unknown,
	// revoked, or expired.
	CodeRefreshTokenInvalid Code = "AUTH_014"

	// CodeAuthorizationHeader indicates an Authorization header that is
	// not of the form "Bearer <token>".
	CodeAuthorizationHeader Code = "AUTH_015"
)

// Authorization errors (403).
const (
	// CodeAuthorization indicates a general authorization failure.
	CodeAuthorization Code = "AUTHZ_001"
)

// Not found errors (404).
const (
	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user does not exist.
	CodeNotFoundUser Code = "NF_002"
)

// Conflict errors (409).
const (
	// CodeConflict indicates a general conflict.
	CodeConflict Code = "CONF_001"

	// CodeConflictAlreadyExists indicates a uniqueness constraint
	// rejected an insert.
	CodeConflictAlreadyExists Code = "CONF_002"
)

// Rate limit errors (429).
const (
	// CodeRateLimited indicates the caller was throttled.
	CodeRateLimited Code = "RATE_001"
)

// Internal errors (500).
const (
	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeProvisioning indicates a data-layer anomaly while provisioning
	// an identity: the unique constraint fired but no row was found on
	// re-query. Operators must be alerted; it is never retried.
	CodeProvisioning Code = "INT_010"
)

// Unavailable errors (503).
const (
	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependency is unreachable.
	CodeUnavailableDependency Code = "UNAVAIL_002"
)

// Timeout errors (504).
const (
	// CodeTimeout indicates a general timeout.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a database operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the code as a plain string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("AUTH" for
// "AUTH_010"). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
