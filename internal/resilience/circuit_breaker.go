package resilience

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitHalfOpen
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitHalfOpen:
		return "half-open"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after threshold consecutive failures and rejects every call
// for breakFor. After the window exactly one probe is let through: success closes
// the circuit, failure reopens it and restarts the window.
//
// Safe for concurrent use.
type CircuitBreaker struct {
	threshold int
	breakFor  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(threshold int, breakFor time.Duration, now func() time.Time, logger *slog.Logger) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	if now == nil {
		now = time.Now
	}
	metrics.CircuitState.Set(float64(CircuitClosed))
	return &CircuitBreaker{
		threshold: threshold,
		breakFor:  breakFor,
		now:       now,
		logger:    logger,
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Execute(ctx context.Context, fn Func) error {
	probe, err := cb.allow()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.record(probe, err)
	return err
}

// allow reports whether a call may run and whether it is the half-open probe
func (cb *CircuitBreaker) allow() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return false, nil

	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.breakFor {
			cb.transition(CircuitHalfOpen)
			cb.logger.Info("Circuit breaker half-open")
			cb.probing = true
			return true, nil
		}

	case CircuitHalfOpen:
		if !cb.probing {
			cb.probing = true
			return true, nil
		}
	}

	metrics.CircuitRejections.Inc()
	return false, ErrCircuitOpen
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
		if err == nil {
			cb.failures = 0
			cb.transition(CircuitClosed)
			cb.logger.Info("Circuit breaker reset")
			return
		}
		cb.open(err)
		return
	}

	// Calls admitted while closed may finish after another call tripped the breaker
	if cb.state != CircuitClosed {
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.open(err)
	}
}

func (cb *CircuitBreaker) open(err error) {
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.transition(CircuitOpen)
	cb.logger.Warn("Circuit breaker opened",
		"break_seconds", cb.breakFor.Seconds(),
		"error", err,
	)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	cb.state = to
	metrics.CircuitState.Set(float64(to))
}
