// Package resilience wraps fallible units of work in retry, circuit breaker and
// timeout behaviour. Composition, outermost first: Retry -> CircuitBreaker -> Timeout.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrTimeout     = errors.New("attempt timed out")
)

// Func is a unit of work. It should honour ctx cancellation where it can.
type Func = func(ctx context.Context) error

type Config struct {
	RetryCount       int
	RetryBaseDelay   time.Duration
	FailureThreshold int
	BreakDuration    time.Duration
	Timeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		RetryCount:       3,
		RetryBaseDelay:   2 * time.Second,
		FailureThreshold: 3,
		BreakDuration:    30 * time.Second,
		Timeout:          30 * time.Second,
	}
}

type Option func(*options)

type options struct {
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// WithClock replaces the clock used by the circuit breaker
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSleeper replaces the backoff sleep between retries
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

type Policy struct {
	retry   *Retry
	breaker *CircuitBreaker
	timeout *Timeout
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Policy {
	o := options{now: time.Now, sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}

	l := logger.With("component", "resilience")
	return &Policy{
		retry:   NewRetry(cfg.RetryCount, cfg.RetryBaseDelay, o.sleep, l),
		breaker: NewCircuitBreaker(cfg.FailureThreshold, cfg.BreakDuration, o.now, l),
		timeout: NewTimeout(cfg.Timeout, l),
	}
}

// Execute runs work under the full policy. It returns nil on the first successful
// attempt, or the last failure once retries are exhausted.
func (p *Policy) Execute(ctx context.Context, work Func) error {
	return p.retry.Execute(ctx, func(ctx context.Context) error {
		return p.breaker.Execute(ctx, func(ctx context.Context) error {
			return p.timeout.Execute(ctx, work)
		})
	})
}

// Breaker exposes the shared circuit breaker, mainly for readiness reporting
func (p *Policy) Breaker() *CircuitBreaker {
	return p.breaker
}

// ExecuteValue is Execute for work that produces a result
func ExecuteValue[T any](ctx context.Context, p *Policy, work func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := work(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
