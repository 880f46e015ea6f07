package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
)

// Timeout bounds a single attempt. The caller is released at the deadline even when
// the work ignores cancellation; the abandoned goroutine finishes on its own.
type Timeout struct {
	after  time.Duration
	logger *slog.Logger
}

func NewTimeout(after time.Duration, logger *slog.Logger) *Timeout {
	return &Timeout{after: after, logger: logger}
}

func (t *Timeout) Execute(ctx context.Context, fn Func) error {
	if t.after <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, t.after)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in unit of work: %v", r)
			}
		}()
		done <- fn(attemptCtx)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			metrics.Timeouts.Inc()
			return fmt.Errorf("%w after %s: %w", ErrTimeout, t.after, err)
		}
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.Timeouts.Inc()
		t.logger.WarnContext(ctx, "Attempt timed out", "timeout_seconds", t.after.Seconds())
		return fmt.Errorf("%w after %s", ErrTimeout, t.after)
	}
}
