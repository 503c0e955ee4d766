package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/retry"
)

type tempErr struct{ temporary bool }

func (e tempErr) Error() string   { return "temp" }
func (e tempErr) Temporary() bool { return e.temporary }

func TestRetry_NoRetryRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Retry(context.Background(), retry.NoRetry(), func(int) error {
		calls++
		return tempErr{temporary: true}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.Is(err, retry.ErrMaxAttemptsExceeded))
	assert.ErrorAs(t, err, new(tempErr))
}

func TestRetry_RetriesTemporaryUntilSuccess(t *testing.T) {
	t.Parallel()

	var attempts []int
	err := retry.Retry(context.Background(), retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return tempErr{temporary: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Retry(context.Background(), retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond}, func(int) error {
		calls++
		return tempErr{temporary: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.Is(err, retry.ErrMaxAttemptsExceeded))
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Retry(context.Background(), retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond}, func(int) error {
		calls++
		return tempErr{temporary: true}
	})

	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, retry.ErrMaxAttemptsExceeded))
	assert.ErrorAs(t, err, new(tempErr))
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := retry.Retry(ctx, retry.Config{MaxAttempts: 3, InitialDelay: time.Hour}, func(int) error {
		cancel()
		return tempErr{temporary: true}
	})

	assert.True(t, errors.Is(err, retry.ErrContextCancelled))
}

func TestConfig_Backoff(t *testing.T) {
	t.Parallel()

	cfg := retry.Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestIsTemporary(t *testing.T) {
	t.Parallel()

	assert.False(t, retry.IsTemporary(nil))
	assert.True(t, retry.IsTemporary(tempErr{temporary: true}))
	assert.False(t, retry.IsTemporary(errors.New("plain")))
	assert.True(t, retry.IsTemporary(context.DeadlineExceeded))
}
