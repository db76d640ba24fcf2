package shared

import (
	"context"
	"fmt"
	"time"
)

// RetryOptions bounds a retried operation.
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryOptions mirrors the warehouse sync defaults.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxAttempts: 3, Delay: time.Second}
}

// RetryError reports that an operation kept failing after every attempt.
type RetryError struct {
	Attempts int
	Delay    time.Duration
	Cause    error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts (delay %s): %v", e.Attempts, e.Delay, e.Cause)
}

// Unwrap exposes the last underlying failure.
func (e *RetryError) Unwrap() error {
	return e.Cause
}

// Retry invokes op until it succeeds or the attempt budget is exhausted,
// sleeping Delay * attempt between failures. Sleeps abort on context
// cancellation, in which case the context error is the cause. Idempotency of
// op across attempts is the caller's responsibility.
func Retry(ctx context.Context, op func(context.Context) error, opts RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	var last error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = err
			}
			return &RetryError{Attempts: attempt - 1, Delay: opts.Delay, Cause: last}
		}
		if err := op(ctx); err != nil {
			last = err
			if attempt < opts.MaxAttempts {
				timer := time.NewTimer(opts.Delay * time.Duration(attempt))
				select {
				case <-ctx.Done():
					timer.Stop()
					return &RetryError{Attempts: attempt, Delay: opts.Delay, Cause: last}
				case <-timer.C:
				}
			}
			continue
		}
		return nil
	}
	return &RetryError{Attempts: opts.MaxAttempts, Delay: opts.Delay, Cause: last}
}
