package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/claimflow/internal/service"
)

// ErrMaxAttempts indicates that all attempts have been exhausted.
var ErrMaxAttempts = errors.New("max attempts exceeded")

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Again marks err as a reason to run the operation once more.
func Again(err error) error {
	return &RetryableError{Err: err, Retryable: true}
}

// DefaultRetryOptions returns the backoff used when watching a claim.
func DefaultRetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  20,
		InitialDelay: 2 * time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   1.5,
	}
}

// WithRetry runs operation until it returns nil, a non-retryable error, or the
// attempt budget is spent. Only errors marked retryable are attempted again.
func WithRetry(ctx context.Context, operation func(attempt int) error, opts service.RetryOptions) error {
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

	delay := opts.InitialDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		err := operation(attempt)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}

		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxAttempts, opts.MaxAttempts, err)
		}

		slog.Debug("Operation not finished, trying again",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"reason", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * opts.Multiplier)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}
	}

	return ErrMaxAttempts
}
