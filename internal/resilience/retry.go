package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/pkg/infra"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
)

// MaxRetryCount bounds count so base<<count stays a positive duration
const MaxRetryCount = 16

// Retry re-runs a failed call up to count extra times, sleeping base*2^(n-1) before retry n.
type Retry struct {
	count  int
	base   time.Duration
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger
}

func NewRetry(count int, base time.Duration, sleep func(context.Context, time.Duration) error, logger *slog.Logger) *Retry {
	if count < 0 {
		count = 0
	}
	if count > MaxRetryCount {
		count = MaxRetryCount
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &Retry{count: count, base: base, sleep: sleep, logger: logger}
}

func (r *Retry) Execute(ctx context.Context, fn Func) error {
	backoff := infra.NewExponentialBackoff(r.base, r.base<<r.count)

	// lastWorkErr remembers the most recent failure of the work itself,
	// so a trailing circuit-open rejection still reports the real cause.
	var lastWorkErr error

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCircuitOpen) {
			lastWorkErr = err
		}

		if attempt >= r.count || ctx.Err() != nil {
			if errors.Is(err, ErrCircuitOpen) && lastWorkErr != nil {
				return fmt.Errorf("%w: last failure: %w", err, lastWorkErr)
			}
			return err
		}

		wait := backoff.Next()
		metrics.RetryAttempts.Inc()
		r.logger.WarnContext(ctx, "Retrying after failure",
			"retry", attempt+1,
			"wait_seconds", wait.Seconds(),
			"error", err,
		)

		if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
			return err
		}
	}
}
