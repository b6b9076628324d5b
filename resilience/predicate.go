package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// HTTPStatusError is implemented by errors that carry an upstream HTTP status.
type HTTPStatusError interface {
	HTTPStatus() int
}

// ProviderCodeError is implemented by errors that carry a provider error code.
type ProviderCodeError interface {
	ProviderCode() string
}

type retryable interface {
	Retryable() bool
}

// TransientProviderCodes are provider codes that are always safe to retry.
var TransientProviderCodes = map[string]bool{
	"rate_limit":           true,
	"lock_timeout":         true,
	"api_connection_error": true,
	"service_unavailable":  true,
}

// DefaultRetryPredicate retries network failures, timeouts, 5xx, 429 and
// transient provider codes. 4xx and explicit non-retryable errors stop.
func DefaultRetryPredicate(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var pc ProviderCodeError
	if errors.As(err, &pc) && TransientProviderCodes[pc.ProviderCode()] {
		return true
	}

	var hs HTTPStatusError
	if errors.As(err, &hs) {
		s := hs.HTTPStatus()
		return s == http.StatusTooManyRequests || s >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ConfirmRetryPredicate is used for payment confirmation. Only rejections that
// prove the charge was not attempted are retried: 429 and rate_limit or
// lock_timeout provider codes. Timeouts, 5xx and network errors are ambiguous.
func ConfirmRetryPredicate(err error) bool {
	if err == nil {
		return false
	}
	var pc ProviderCodeError
	if errors.As(err, &pc) {
		switch pc.ProviderCode() {
		case "rate_limit", "lock_timeout":
			return true
		}
	}
	var hs HTTPStatusError
	if errors.As(err, &hs) {
		return hs.HTTPStatus() == http.StatusTooManyRequests
	}
	return false
}

// IsAmbiguous reports whether err leaves the outcome of a submitted charge unknown.
func IsAmbiguous(err error) bool {
	if err == nil || ConfirmRetryPredicate(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var pc ProviderCodeError
	if errors.As(err, &pc) && TransientProviderCodes[pc.ProviderCode()] {
		return true
	}
	var hs HTTPStatusError
	if errors.As(err, &hs) {
		return hs.HTTPStatus() >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
