// Package util provides shared utility functions for lxfs.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ConnectRetryOptions returns retry options for daemon socket connects,
// covering the window between spawning the daemon and its socket appearing.
func ConnectRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(20),
		retry.Delay(50 * time.Millisecond),
		retry.MaxDelay(500 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsConnRefused),
		retry.Context(ctx),
	}
}

// DefaultRetryOptions returns sensible defaults for retry operations.
func DefaultRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(1 * time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	}
}

// Retry executes fn with retry logic.
// Returns the last error if all attempts fail.
func Retry(ctx context.Context, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.Do(fn, opts...)
}

// RetryWithResult executes fn with retry logic and returns the result.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = DefaultRetryOptions(ctx)
	}
	return retry.DoWithData(fn, opts...)
}

// IsConnRefused returns true if the error indicates the daemon socket is
// missing or not accepting yet.
func IsConnRefused(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such file or directory")
}
