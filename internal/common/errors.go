// Package common holds the error sentinels, logging helpers and retry loop
// shared by every recon package.
package common

import (
	"context"
	"errors"
)

// Callers match these with errors.Is; the gateway and workflow wrap them with
// context.
var (
	ErrNotFound = errors.New("not found")

	// ErrBackendUnreachable covers transport failures and gateway statuses.
	ErrBackendUnreachable = errors.New("backend unreachable")
	// ErrBackendRejected is a request the backend understood and refused.
	ErrBackendRejected = errors.New("backend rejected request")

	ErrInvalidTransition = errors.New("invalid state transition")
	ErrEmptySelection    = errors.New("nothing selected")

	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsRetryable reports whether err is worth another attempt. Transport
// failures, rate limits and deadlines are; rejections and cancellation are not.
// A RetryableError anywhere in the chain overrides this.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if re := (*RetryableError)(nil); errors.As(err, &re) {
		return re.Retryable
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRateLimit), errors.Is(err, ErrBackendUnreachable), errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}
