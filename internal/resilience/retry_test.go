package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_BackoffSchedule(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetry(3, 2*time.Second, sleeper.Sleep, discardLogger())

	boom := errors.New("boom")
	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeper.waits)
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetry(3, 2*time.Second, sleeper.Sleep, discardLogger())

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.waits)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	r := NewRetry(2, time.Millisecond, (&recordingSleeper{}).Sleep, discardLogger())

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("failure " + string(rune('0'+calls)))
	})

	require.EqualError(t, err, "failure 3")
}

func TestRetry_LargeCountIsClamped(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetry(1000, 2*time.Second, sleeper.Sleep, discardLogger())

	calls := 0
	_ = r.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	assert.Equal(t, MaxRetryCount+1, calls)
	require.Len(t, sleeper.waits, MaxRetryCount)
	for i := 1; i < len(sleeper.waits); i++ {
		assert.Greater(t, sleeper.waits[i], sleeper.waits[i-1], "wait %d", i)
	}
	assert.Equal(t, 2*time.Second<<(MaxRetryCount-1), sleeper.waits[MaxRetryCount-1])
}

func TestRetry_ZeroRetries(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetry(0, time.Second, sleeper.Sleep, discardLogger())

	calls := 0
	_ = r.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
}

func TestRetry_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetry(3, time.Second, sleepContext, discardLogger())

	calls := 0
	err := r.Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CircuitRejectionKeepsCause(t *testing.T) {
	r := NewRetry(1, time.Millisecond, (&recordingSleeper{}).Sleep, discardLogger())
	cause := errors.New("db down")

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return cause
		}
		return ErrCircuitOpen
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, cause)
}
