package db

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryPolicyRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	sentinel := errors.New("no rows")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestRetryPolicyBoundsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func() error {
		calls++
		return &net.OpError{Op: "read", Net: "tcp", Err: errors.New("reset")}
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestIsTransientIgnoresContextErrors(t *testing.T) {
	require.False(t, IsTransient(context.Canceled))
	require.False(t, IsTransient(nil))
	require.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("refused")}))
}
