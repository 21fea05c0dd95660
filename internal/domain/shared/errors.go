package shared

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced across the module. Callers branch with errors.Is;
// lower layers wrap these with %w and attach context.
var (
	// ErrNetwork marks connection-level failures (DNS, reset, EOF).
	ErrNetwork = errors.New("network error")

	// ErrTimeout marks connect or total-deadline expiry on a remote call.
	ErrTimeout = errors.New("timeout")

	// ErrRateLimited marks an HTTP 429 from the marketplace.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuth marks HTTP 401/403; never retried.
	ErrAuth = errors.New("authentication failed")

	// ErrRemoteValidation marks a well-formed response that reports
	// isError=true or a malformed envelope.
	ErrRemoteValidation = errors.New("remote validation failed")

	// ErrConflictExists marks a uniqueness violation (duplicate SKU,
	// second confirmed match, duplicate idempotency key).
	ErrConflictExists = errors.New("conflicting record exists")

	// ErrBusy marks a sync submission rejected because an equivalent
	// run already holds the (account, resource) slot.
	ErrBusy = errors.New("sync already running")

	// ErrCancelled marks cooperative cancellation.
	ErrCancelled = errors.New("cancelled")

	// ErrSyncTimedOut marks a run that exceeded its wall-clock cap.
	ErrSyncTimedOut = errors.New("sync timed out")

	// ErrTzMismatch marks a timezone-aware timestamp reaching the
	// persistence boundary.
	ErrTzMismatch = errors.New("timestamp must be naive UTC")

	// ErrCircuitOpen marks a call rejected by an open circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrNotFound marks a lookup miss on a local repository.
	ErrNotFound = errors.New("record not found")
)

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RemoteError carries the marketplace envelope's message list alongside
// the HTTP status that produced it. It wraps one of the kind sentinels
// so errors.Is keeps working through it. RetryAfter is non-zero only
// when a 429 carried a parseable Retry-After header.
type RemoteError struct {
	Kind       error
	StatusCode int
	Messages   []string
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("%v (http %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v (http %d): %s", e.Kind, e.StatusCode, e.Messages[0])
}

func (e *RemoteError) Unwrap() error {
	return e.Kind
}

func NewRemoteError(kind error, statusCode int, messages []string) *RemoteError {
	return &RemoteError{Kind: kind, StatusCode: statusCode, Messages: messages}
}
