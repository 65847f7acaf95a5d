package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	r := New(&Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2})
	calls := 0
	result := r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	r := New(&Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2})
	calls := 0
	result := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	r := New(&Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2})
	calls := 0
	result := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, result.Err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Attempts)
}

func TestDo_StopsEarlyWhenRetryIfRejects(t *testing.T) {
	r := New(&Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
		RetryIf:      func(error) bool { return false },
	})
	calls := 0
	result := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("not retryable")
	})
	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	r := New(&Config{MaxAttempts: 0, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	result := r.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("keep failing")
	})
	require.Error(t, result.Err)
	assert.GreaterOrEqual(t, calls, 1)
}

func TestNextDelay_CapsAtMaxDelay(t *testing.T) {
	r := New(&Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10})
	assert.Equal(t, 3*time.Second, r.nextDelay(time.Second))
}

func TestNew_AppliesDefaultsForNilConfig(t *testing.T) {
	r := New(nil)
	assert.Equal(t, 3, r.config.MaxAttempts)
	assert.NotNil(t, r.config.RetryIf)
}
