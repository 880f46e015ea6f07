package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeadLettersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_dead_letters_created_total",
		Help: "Inbound events parked in the dead-letter store",
	}, []string{"source"})

	// DeadLetterReplays tracks replay outcomes: processed, failed, error, unknown_source
	DeadLetterReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_dead_letter_replays_total",
		Help: "Dead-letter replay attempts by outcome",
	}, []string{"source", "status"})

	DeadLetterBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "saga_dead_letter_batch_size",
		Help:    "Number of dead letters loaded per scan",
		Buckets: []float64{0, 1, 10, 50, 100, 500, 1000},
	})

	// BrokerDeadLetters counts messages that reached the broker-level dead-letter queues
	BrokerDeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_broker_dead_letters_total",
		Help: "Messages observed on the global broker dead-letter queue",
	}, []string{"queue"})
)
