package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumerMessages tracks the throughput and result of message consumption
	ConsumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_consumer_messages_total",
		Help: "Total number of deliveries handled by the saga consumer",
	}, []string{"event", "result"}) // result: ack, nack, requeue

	ConsumerInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saga_consumer_in_flight",
		Help: "Deliveries currently being handled",
	})
)
