package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SagaTransitions counts committed state changes, labelled by inbound event and edge
	SagaTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_transitions_total",
		Help: "Total number of committed saga state transitions",
	}, []string{"event", "from", "to"})

	// SagaEventsIgnored counts events that matched no transition (duplicates, out-of-order, unknown saga)
	SagaEventsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_ignored_total",
		Help: "Inbound events that did not advance any saga",
	}, []string{"event", "reason"})

	// TransitionDuration measures the full handling of one inbound event, retries included
	TransitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_transition_duration_seconds",
		Help:    "Time taken to apply an inbound event, including resilience retries",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60},
	}, []string{"event", "outcome"})

	// HealthStatus provides a binary 0/1 signal for the broker link
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saga_broker_healthy",
		Help: "Current health of the RabbitMQ link (1 for healthy, 0 for unhealthy)",
	})

	// RabbitMQReconnections counts how many times the publisher had to restore the link
	RabbitMQReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_rabbitmq_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// FailedSagas and StaleSagas mirror the last health check counts
	FailedSagas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saga_failed_instances",
		Help: "Sagas currently in a failed state",
	})

	StaleSagas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saga_stale_instances",
		Help: "Non-terminal sagas older than the staleness window",
	})
)
