package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/internal/saga"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

const dlqRetryDelay = 5 * time.Second

// EventHandler applies one inbound event to its saga
type EventHandler interface {
	Handle(ctx context.Context, evt models.Event) (saga.Result, error)
}

// DeadLetterMonitor receives messages the broker dead-lettered
type DeadLetterMonitor interface {
	HandleDeadLetter(ctx context.Context, queue, messageType, reason string, body []byte) error
}

// RabbitMQConsumer manages the connection and message flow from the broker
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	handler  EventHandler
	monitor  DeadLetterMonitor
	logger   *slog.Logger
	prefetch int
	workers  int
}

func NewRabbitMQConsumer(url string, prefetch, workers int, handler EventHandler, monitor DeadLetterMonitor, logger *slog.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Prefetch bounds unacked deliveries per consumer; the worker pool bounds concurrency
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := DeclareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQConsumer{
		conn:     conn,
		channel:  ch,
		handler:  handler,
		monitor:  monitor,
		logger:   logger.With("component", "consumer"),
		prefetch: prefetch,
		workers:  workers,
	}, nil
}

// Listen consumes every event queue plus the global DLQ until ctx is cancelled or the link drops.
// In-flight deliveries are finished before it returns.
func (c *RabbitMQConsumer) Listen(ctx context.Context) error {
	queues := make([]string, 0, len(models.EventKinds)+1)
	for _, kind := range models.EventKinds {
		queues = append(queues, eventQueues[kind])
	}
	queues = append(queues, GlobalDLQ)

	// Nothing is read until every queue is registered
	streams, err := consumeAll(c.channel, queues)
	if err != nil {
		return err
	}

	readers, rctx := errgroup.WithContext(ctx)

	var pool errgroup.Group
	pool.SetLimit(c.workers)

	for _, queue := range queues[:len(queues)-1] {
		msgs := streams[queue]
		readers.Go(func() error {
			return c.drain(rctx, ctx, queue, msgs, &pool)
		})
	}
	readers.Go(func() error {
		return c.watchDeadLetters(rctx, streams[GlobalDLQ])
	})

	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	readers.Go(func() error {
		select {
		case amqpErr := <-closed:
			return fmt.Errorf("RabbitMQ connection closed: %v", amqpErr)
		case <-rctx.Done():
			return nil
		}
	})

	c.logger.Info("Consumer is online and waiting for messages",
		"queues", len(models.EventKinds),
		"prefetch", c.prefetch,
		"workers", c.workers,
	)

	err = readers.Wait()
	_ = pool.Wait()
	return err
}

// deliverySource is the part of *amqp.Channel used to register consumers
type deliverySource interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

// consumeAll registers one consumer per queue. On failure the consumers already
// registered are cancelled so no delivery is left with an unread channel.
func consumeAll(ch deliverySource, queues []string) (map[string]<-chan amqp.Delivery, error) {
	streams := make(map[string]<-chan amqp.Delivery, len(queues))
	var tags []string

	for _, queue := range queues {
		tag := consumerTag(queue)
		msgs, err := ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			for _, t := range tags {
				_ = ch.Cancel(t, false)
			}
			return nil, fmt.Errorf("failed to register consumer on %s: %w", queue, err)
		}
		tags = append(tags, tag)
		streams[queue] = msgs
	}
	return streams, nil
}

func consumerTag(queue string) string {
	return "saga-orchestrator." + queue
}

// drain reads one queue under readCtx and hands deliveries to the pool, which handles them under ctx
func (c *RabbitMQConsumer) drain(readCtx, ctx context.Context, queue string, msgs <-chan amqp.Delivery, pool *errgroup.Group) error {
	for {
		select {
		case <-readCtx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			pool.Go(func() error {
				c.dispatch(ctx, queue, d)
				return nil
			})
		}
	}
}

func (c *RabbitMQConsumer) dispatch(ctx context.Context, queue string, d amqp.Delivery) {
	metrics.ConsumerInFlight.Inc()
	defer metrics.ConsumerInFlight.Dec()

	l := c.logger.With("queue", queue, "delivery_tag", d.DeliveryTag)

	evt, err := decodeDelivery(d)
	if err != nil {
		l.Error("Failed to decode delivery, rejecting to DLX", "error", err)
		c.settle(d, actionReject, messageType(d), l)
		return
	}

	res, err := c.handler.Handle(ctx, evt)
	action := decide(ctx, err)

	l = l.With("correlation_id", evt.SagaID(), "event", evt.Kind())
	switch action {
	case actionAck:
		l.Debug("Delivery handled", "outcome", res.Outcome)
	case actionRequeue:
		l.Warn("Handling interrupted, requeueing", "error", err)
	case actionReject:
		l.Error("Handling failed, rejecting to DLX", "error", err)
	}

	c.settle(d, action, string(evt.Kind()), l)
}

func (c *RabbitMQConsumer) settle(d amqp.Delivery, action ackAction, event string, l *slog.Logger) {
	var err error
	switch action {
	case actionAck:
		err = d.Ack(false)
	case actionRequeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		l.Error("Failed to settle delivery", "action", action, "error", err)
	}
	metrics.ConsumerMessages.WithLabelValues(event, action.String()).Inc()
}

func (c *RabbitMQConsumer) watchDeadLetters(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", GlobalDLQ)
			}

			queue, reason := deathInfo(d)
			if err := c.monitor.HandleDeadLetter(ctx, queue, messageType(d), reason, d.Body); err != nil {
				// Throttle before handing it back so a broken store does not spin the DLQ
				select {
				case <-time.After(dlqRetryDelay):
				case <-ctx.Done():
				}
				_ = d.Nack(false, true)
				continue
			}
			if err := d.Ack(false); err != nil {
				c.logger.Error("Failed to ack global DLQ message", "error", err)
			}
		}
	}
}

// Close gracefully terminates RabbitMQ resources
func (c *RabbitMQConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}

type ackAction int

const (
	actionAck ackAction = iota
	actionReject
	actionRequeue
)

func (a ackAction) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionRequeue:
		return "requeue"
	default:
		return "nack"
	}
}

// decide maps a handling result onto the delivery. Dead-lettered events are acked because
// the dead-letter store now owns the retry. Anything else that failed, including a failed
// dead-letter write, is rejected to the per-queue DLX.
func decide(ctx context.Context, err error) ackAction {
	var dead *models.DeadLetteredError

	switch {
	case err == nil:
		return actionAck
	case errors.As(err, &dead):
		return actionAck
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return actionRequeue
	default:
		return actionReject
	}
}

func decodeDelivery(d amqp.Delivery) (models.Event, error) {
	kind := messageType(d)
	if kind == "" {
		return nil, fmt.Errorf("delivery on %q has no message type", d.RoutingKey)
	}
	return models.DecodeEvent(kind, d.Body)
}

// messageType prefers the message_type header, then the AMQP type property, then the routing key
func messageType(d amqp.Delivery) string {
	if v, ok := d.Headers[HeaderType].(string); ok && v != "" {
		return v
	}
	if d.Type != "" {
		return d.Type
	}
	if kind, ok := kindForRoutingKey(d.RoutingKey); ok {
		return string(kind)
	}
	return ""
}

// deathInfo reads the originating queue and reason from the most recent x-death entry
func deathInfo(d amqp.Delivery) (queue, reason string) {
	queue, reason = GlobalDLQ, "unknown"

	deaths, ok := d.Headers[deathHeader].([]interface{})
	if !ok || len(deaths) == 0 {
		return queue, reason
	}
	entry, ok := deaths[0].(amqp.Table)
	if !ok {
		return queue, reason
	}
	if q, ok := entry["queue"].(string); ok {
		queue = q
	}
	if r, ok := entry["reason"].(string); ok {
		reason = r
	}
	return queue, reason
}
