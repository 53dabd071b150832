package gcm

import (
	"errors"
	"fmt"
	"time"
)

// Per-result error codes returned by the GCM connection server inside a 200
// response. See the HTTP server reference for what each one means. The set
// is closed: anything the gateway sends outside it is classified Unhandled
// and logged for operator visibility instead of silently swallowed.
const (
	ResultErrUnavailable               = "Unavailable"
	ResultErrNotRegistered             = "NotRegistered"
	ResultErrMissingRegistration       = "MissingRegistration"
	ResultErrInvalidRegistration       = "InvalidRegistration"
	ResultErrMismatchSenderID          = "MismatchSenderId"
	ResultErrMessageTooBig             = "MessageTooBig"
	ResultErrInvalidDataKey            = "InvalidDataKey"
	ResultErrInvalidTTL                = "InvalidTtl"
	ResultErrInternalServerError       = "InternalServerError"
	ResultErrInvalidPackageName        = "InvalidPackageName"
	ResultErrDeviceMessageRateExceeded = "DeviceMessageRateExceeded"
)

// fatalResultErrors are the per-recipient codes that retrying the same
// payload cannot fix: malformed request fields or gateway-side conditions.
// They are logged and dropped, never retried, and never touch the registry.
var fatalResultErrors = map[string]struct{}{
	ResultErrMissingRegistration:       {},
	ResultErrInvalidRegistration:       {},
	ResultErrMismatchSenderID:          {},
	ResultErrMessageTooBig:             {},
	ResultErrInvalidDataKey:            {},
	ResultErrInvalidTTL:                {},
	ResultErrInternalServerError:       {},
	ResultErrInvalidPackageName:        {},
	ResultErrDeviceMessageRateExceeded: {},
}

var (
	// ErrBadRequest means the gateway rejected the whole batch (HTTP 400):
	// the request could not be parsed or contained invalid fields. Not
	// retryable; the payload has to be fixed first.
	ErrBadRequest = errors.New("gcm: gateway rejected request (400)")

	// ErrAuthenticationFailed means the API key was not accepted (HTTP 401),
	// or GCM is disabled for the project. Not retryable; an operator has to
	// fix the credential.
	ErrAuthenticationFailed = errors.New("gcm: authentication failed (401)")
)

// InvalidArgumentError reports a caller-supplied field that fails validation
// before any network call is made.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("gcm: invalid %s: %s", e.Field, e.Reason)
}

// GatewayUnavailableError means the gateway answered 5xx: the whole batch
// failed but is available for retry. RetryAfter carries the gateway's
// Retry-After header when present; it overrides the computed backoff.
type GatewayUnavailableError struct {
	StatusCode int
	RetryAfter *time.Duration
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("gcm: gateway unavailable (%d)", e.StatusCode)
}

// TransportError wraps a network-level send failure: timeout, TLS error,
// unresolvable target, oversized response. Whether a batch dropped here gets
// re-enqueued is a deliberate configuration choice of the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gcm: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
