package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, retry.Attempts(5), retry.Delay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithResult(t *testing.T) {
	t.Parallel()

	attempts := 0
	got, err := RetryWithResult(context.Background(), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, retry.Attempts(3), retry.Delay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestIsConnRefused(t *testing.T) {
	t.Parallel()

	assert.False(t, IsConnRefused(nil))
	assert.False(t, IsConnRefused(errors.New("permission denied")))
	assert.True(t, IsConnRefused(errors.New("dial unix: connect: connection refused")))
	assert.True(t, IsConnRefused(errors.New("dial unix: connect: no such file or directory")))
}

func TestWaitFixed(t *testing.T) {
	t.Parallel()

	calls := 0
	ok := WaitFixed(5, time.Millisecond, func() bool {
		calls++
		return calls == 3
	})
	assert.True(t, ok)
	assert.Equal(t, 3, calls)

	assert.False(t, WaitFixed(2, time.Millisecond, func() bool { return false }))
}
