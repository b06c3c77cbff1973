// Package contract defines the wire types shared between the broker and its
// MCP callers: the closed error taxonomy, the request shape, and the response
// envelope. These are an external contract; codes and field names must never
// be renamed without a contract version bump.
package contract

import "strings"

// Stable error codes. The set is exhaustive: collaborators return these codes
// verbatim and the broker never rewrites one code into another.
const (
	CodeInvalidField         = "bad_request.invalid_field"
	CodeInvalidTimeout       = "bad_request.invalid_timeout"
	CodeUnsupportedOperation = "bad_request.unsupported_operation"

	CodePolicyDenied          = "policy.denied"
	CodePolicyInvalidScope    = "policy.invalid_scope"
	CodePolicyMissingIdentity = "policy.missing_identity"

	CodeSecretNotFound     = "secret.not_found"
	CodeSecretAccessDenied = "secret.access_denied"
	CodeSecretTimeout      = "secret.timeout"
	CodeSecretUnavailable  = "secret.unavailable"

	CodeProviderTimeout     = "provider.timeout"
	CodeProviderAuthFailed  = "provider.auth_failed"
	CodeProviderRateLimited = "provider.rate_limited"
	CodeProviderUnavailable = "provider.unavailable"
	CodeProviderBadResponse = "provider.bad_response"
)

// Error is a coded error crossing a component boundary. The Code is one of
// the constants above and is surfaced to callers unchanged.
type Error struct {
	Code     string
	Message  string
	Metadata map[string]any
}

// E builds a coded Error.
func E(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Category returns the first dotted segment of a code, e.g. "provider" for
// "provider.timeout".
func Category(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i]
	}
	return code
}

// AsError returns err as a *Error when it is one, or wraps it under the given
// fallback code otherwise. Collaborators are expected to return coded errors;
// the fallback keeps the taxonomy closed even if one leaks a plain error.
func AsError(err error, fallbackCode string) *Error {
	if coded, ok := err.(*Error); ok {
		return coded
	}
	return &Error{Code: fallbackCode, Message: err.Error()}
}
