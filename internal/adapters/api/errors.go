package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// categorizeStatus maps a non-2xx HTTP status to an error kind.
// Messages from the body, when the remote bothered to send an
// envelope, ride along for operator visibility.
func categorizeStatus(statusCode int, header http.Header, body []byte) error {
	messages := bodyMessages(body)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return shared.NewRemoteError(shared.ErrAuth, statusCode, messages)
	case statusCode == http.StatusTooManyRequests:
		re := shared.NewRemoteError(shared.ErrRateLimited, statusCode, messages)
		re.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		return re
	case statusCode >= 500:
		return shared.NewRemoteError(shared.ErrNetwork, statusCode, messages)
	default:
		return shared.NewRemoteError(shared.ErrRemoteValidation, statusCode, messages)
	}
}

// categorizeTransport maps round-trip failures. Deadline expiry counts
// as a timeout whether it came from the dialer, the client timeout, or
// the context.
func categorizeTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return shared.ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return shared.ErrTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return shared.ErrTimeout
	}
	return shared.ErrNetwork
}

// bodyMessages pulls envelope messages out of an error body, if there
// is one worth reading.
func bodyMessages(body []byte) []string {
	if len(body) == 0 {
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	return env.MessageTexts()
}

// parseRetryAfter understands the delay-seconds form only; the
// marketplace does not send HTTP dates here.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryable reports whether another attempt may help.
func retryable(err error) bool {
	return errors.Is(err, shared.ErrNetwork) ||
		errors.Is(err, shared.ErrTimeout) ||
		errors.Is(err, shared.ErrRateLimited)
}

// tripsBreaker reports whether a final call failure advances the
// breaker's consecutive-failure count. Timeouts and auth failures
// signal a remote in trouble; semantic validation errors and transient
// kinds that exhausted their retries do not.
func tripsBreaker(err error) bool {
	return errors.Is(err, shared.ErrTimeout) || errors.Is(err, shared.ErrAuth)
}

// retryAfterHint extracts the server-mandated delay from a 429, zero
// otherwise.
func retryAfterHint(err error) time.Duration {
	var re *shared.RemoteError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
