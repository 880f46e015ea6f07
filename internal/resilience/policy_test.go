package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(clock *fakeClock, sleeper *recordingSleeper) *Policy {
	return New(DefaultConfig(), discardLogger(), WithClock(clock.Now), WithSleeper(sleeper.Sleep))
}

func TestPolicy_SucceedsFirstTry(t *testing.T) {
	clock := newFakeClock()
	sleeper := &recordingSleeper{clock: clock}
	p := newTestPolicy(clock, sleeper)

	calls := 0
	require.NoError(t, p.Execute(context.Background(), succeeding(&calls)))
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.waits)
}

func TestPolicy_ExhaustionTripsBreaker(t *testing.T) {
	clock := newFakeClock()
	sleeper := &recordingSleeper{clock: clock}
	p := newTestPolicy(clock, sleeper)

	calls := 0
	err := p.Execute(context.Background(), failing(&calls))

	// attempts at t=0, 2s, 6s trip the breaker; the retry at 14s is rejected
	// because only 8s of the 30s window have passed.
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.ErrorIs(t, err, errWork)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeper.waits)
	assert.Equal(t, CircuitOpen, p.Breaker().State())
}

func TestPolicy_RecoversAfterBreakWindow(t *testing.T) {
	clock := newFakeClock()
	sleeper := &recordingSleeper{clock: clock}
	p := newTestPolicy(clock, sleeper)

	calls := 0
	_ = p.Execute(context.Background(), failing(&calls))
	require.Equal(t, CircuitOpen, p.Breaker().State())

	clock.Advance(30 * time.Second)
	require.NoError(t, p.Execute(context.Background(), succeeding(&calls)))
	assert.Equal(t, CircuitClosed, p.Breaker().State())
}

func TestPolicy_TimeoutCountsAsFailure(t *testing.T) {
	clock := newFakeClock()
	sleeper := &recordingSleeper{clock: clock}
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.RetryCount = 1
	p := New(cfg, discardLogger(), WithClock(clock.Now), WithSleeper(sleeper.Sleep))

	err := p.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, sleeper.waits, 1)
}

func TestExecuteValue(t *testing.T) {
	clock := newFakeClock()
	p := newTestPolicy(clock, &recordingSleeper{clock: clock})

	attempts := 0
	v, err := ExecuteValue(context.Background(), p, func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
