package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/fattura-reconcile/internal/service"
)

var (
	// ErrRateLimit is returned when the backend answers 429.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries wraps the last error once every attempt has failed.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError overrides the default classification of Err.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// backoff yields exponentially growing delays capped at max.
type backoff struct {
	next   time.Duration
	max    time.Duration
	factor float64
}

func newBackoff(opts service.RetryOptions) *backoff {
	return &backoff{next: opts.InitialDelay, max: opts.MaxDelay, factor: opts.Multiplier}
}

// delay returns the wait before the next attempt. A rate-limited backend
// always gets the full cap.
func (b *backoff) delay(err error) time.Duration {
	d := b.next
	if errors.Is(err, ErrRateLimit) {
		d = b.max
	}
	b.next = min(time.Duration(float64(b.next)*b.factor), b.max)
	return d
}

func retryDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// WithRetry runs operation until it succeeds, fails with an error IsRetryable
// rejects, runs out of attempts or ctx is done.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	opts = retryDefaults(opts)
	b := newBackoff(opts)

	var err error
	for attempt := 1; ; attempt++ {
		if err = operation(); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		wait := b.delay(err)
		LogDebug("backend call failed, retrying", Fields{
			"attempt":      attempt,
			"max_attempts": opts.MaxAttempts,
			"delay":        wait,
			"error":        err,
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
