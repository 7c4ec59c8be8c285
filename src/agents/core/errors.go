package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stake-plus/osintops/src/logging"
)

// ErrorKind classifies adapter failures for the retry policy.
type ErrorKind string

const (
	// ErrorTransient covers network failures and timeouts; eligible for retry.
	ErrorTransient ErrorKind = "transient"
	// ErrorPermanent covers bad targets and unsupported queries; never retried.
	ErrorPermanent ErrorKind = "permanent"
	// ErrorRateLimited is retried after backoff, honoring RetryAfter when set.
	ErrorRateLimited ErrorKind = "rate_limited"
)

// AdapterError is the typed failure returned by adapters.
type AdapterError struct {
	Kind       ErrorKind
	Adapter    string
	RetryAfter time.Duration
	Err        error
}

func (e *AdapterError) Error() string {
	msg := "adapter error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Adapter != "" {
		return fmt.Sprintf("%s: %s: %s", e.Adapter, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(adapter string, err error) error {
	return &AdapterError{Kind: ErrorTransient, Adapter: adapter, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(adapter string, err error) error {
	return &AdapterError{Kind: ErrorPermanent, Adapter: adapter, Err: err}
}

// RateLimited wraps err as a rate-limit failure with an optional hint.
func RateLimited(adapter string, retryAfter time.Duration, err error) error {
	return &AdapterError{Kind: ErrorRateLimited, Adapter: adapter, RetryAfter: retryAfter, Err: err}
}

// Classify returns the typed view of any adapter failure. Untyped errors are
// transient unless they look like a rate limit.
func Classify(adapter string, err error) *AdapterError {
	if err == nil {
		return nil
	}
	var typed *AdapterError
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.Canceled) {
		return &AdapterError{Kind: ErrorPermanent, Adapter: adapter, Err: err}
	}
	if logging.IsRateLimit(err) {
		return &AdapterError{Kind: ErrorRateLimited, Adapter: adapter, Err: err}
	}
	return &AdapterError{Kind: ErrorTransient, Adapter: adapter, Err: err}
}
