package infra

import (
	"math/rand/v2"
	"sync"
	"time"
)

type Backoff struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     float64
	current    time.Duration
	attempts   int
	mu         sync.Mutex
}

// NewBackoff returns a jittered backoff (+/-20%) used for connection recovery loops
func NewBackoff(min, max time.Duration, mult float64) *Backoff {
	return &Backoff{
		minDelay:   min,
		maxDelay:   max,
		multiplier: mult,
		jitter:     0.2,
		current:    min,
	}
}

// NewExponentialBackoff returns a deterministic doubling schedule: base, 2*base, 4*base...
func NewExponentialBackoff(base, max time.Duration) *Backoff {
	return &Backoff{
		minDelay:   base,
		maxDelay:   max,
		multiplier: 2.0,
		current:    base,
	}
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	wait := b.current
	if b.jitter > 0 {
		jitterFactor := rand.Float64()*2*b.jitter - b.jitter
		wait = max(b.current+time.Duration(jitterFactor*float64(b.current)), b.minDelay)
	}

	b.current = min(time.Duration(float64(b.current)*b.multiplier), b.maxDelay)

	return wait
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.minDelay
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
