package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttempts counts retries scheduled by the resilience policy
	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilience_retry_attempts_total",
		Help: "Retries scheduled after a failed attempt",
	})

	// Timeouts counts attempts abandoned at the per-attempt deadline
	Timeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilience_timeouts_total",
		Help: "Attempts that exceeded the per-attempt timeout",
	})

	// CircuitState is 0 closed, 1 half-open, 2 open
	CircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resilience_circuit_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	})

	CircuitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resilience_circuit_rejections_total",
		Help: "Calls rejected without running because the circuit was open",
	})
)
