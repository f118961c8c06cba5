package policy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShouldRetryBudget(t *testing.T) {
	t.Parallel()
	p := NewRetryPolicy(3, time.Millisecond, 10*time.Millisecond)
	err := fmt.Errorf("boom")

	require.True(t, p.ShouldRetry(err, 1))
	require.True(t, p.ShouldRetry(err, 2))
	require.False(t, p.ShouldRetry(err, 3))
	require.False(t, p.ShouldRetry(nil, 1))
}

func TestShouldRetryNotOnCancellation(t *testing.T) {
	t.Parallel()
	p := NewExponentialRetryPolicy()

	require.False(t, p.ShouldRetry(context.Canceled, 1))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
	require.False(t, p.ShouldRetry(fmt.Errorf("wrapped: %w", context.Canceled), 1))
}

func TestBackoffBounded(t *testing.T) {
	t.Parallel()
	p := NewRetryPolicy(5, 100*time.Millisecond, time.Second)

	for attempt := 0; attempt < 10; attempt++ {
		backoff := p.Backoff(attempt)
		require.GreaterOrEqual(t, backoff, time.Duration(0))
		require.LessOrEqual(t, backoff, time.Second)
	}
}

func TestBackoffGrows(t *testing.T) {
	t.Parallel()
	p := NewRetryPolicy(5, 100*time.Millisecond, 10*time.Second)

	// The deterministic half of the delay doubles per attempt.
	require.GreaterOrEqual(t, p.Backoff(3), 400*time.Millisecond)
	require.GreaterOrEqual(t, p.Backoff(4), 800*time.Millisecond)
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	t.Parallel()
	p := NewRetryPolicy(0, 0, 0)

	require.False(t, p.ShouldRetry(fmt.Errorf("boom"), 3))
	require.True(t, p.ShouldRetry(fmt.Errorf("boom"), 2))
}
