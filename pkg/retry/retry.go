// Package retry runs operations with exponential backoff.
//
// Only errors marked with [Transient] are retried; anything else is returned
// at once. The store layer uses it to ride out a Redis instance that is still
// starting when the service boots.
package retry

import (
	"context"
	"errors"
	"time"
)

// TransientError marks an error as worth another attempt.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so that [Do] retries it. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Do calls fn up to attempts times, doubling delay after each transient
// failure. It returns nil on the first success, the first non-transient error,
// ctx.Err() if ctx ends while waiting, or the last error with its transient
// marker removed.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var t *TransientError
		if !errors.As(err, &t) {
			return err
		}
		lastErr = t.Err

		if i < attempts-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				delay *= 2
			}
		}
	}
	return lastErr
}
