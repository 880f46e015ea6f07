package broker

import (
	"fmt"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName    = "saga.topic"
	GlobalDLQ       = "saga-global-dlq"
	HeaderType      = "message_type"
	HeaderCorrID    = "correlation_id"
	dlxSuffix       = "-dlx"
	dlqSuffix       = "-dlq"
	deathHeader     = "x-death"
	contentTypeJSON = "application/json"
)

var routingKeys = map[models.MessageKind]string{
	models.KindOrderCreated:         "order.created",
	models.KindPaymentProcessed:     "payment.processed",
	models.KindInventoryUpdated:     "inventory.updated",
	models.KindOrderCompensated:     "order.compensated",
	models.KindPaymentCompensated:   "payment.compensated",
	models.KindInventoryCompensated: "inventory.compensated",

	models.KindProcessPaymentRequest: "payment.process",
	models.KindUpdateInventory:       "inventory.update",
	models.KindCompensateOrder:       "order.compensate",
	models.KindCompensatePayment:     "payment.compensate",
	models.KindOrderConfirmed:        "order.confirmed",
}

// eventQueues maps each inbound event to the durable queue the orchestrator consumes
var eventQueues = map[models.MessageKind]string{
	models.KindOrderCreated:         "order-created",
	models.KindPaymentProcessed:     "payment-processed",
	models.KindInventoryUpdated:     "inventory-updated",
	models.KindPaymentCompensated:   "payment-compensated",
	models.KindInventoryCompensated: "inventory-compensated",
	models.KindOrderCompensated:     "order-compensated",
}

func RoutingKey(kind models.MessageKind) (string, error) {
	key, ok := routingKeys[kind]
	if !ok {
		return "", fmt.Errorf("no routing key for message kind %q", kind)
	}
	return key, nil
}

// kindForRoutingKey is the fallback when a delivery lacks the message_type header
func kindForRoutingKey(key string) (models.MessageKind, bool) {
	for kind, k := range routingKeys {
		if k == key {
			return kind, true
		}
	}
	return "", false
}

// DeclareTopology declares the topic exchange, one queue per inbound event with its own
// dead-letter exchange and queue, and the global DLQ bound to every dead-letter exchange.
// Declarations are idempotent, so every connection runs it.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(GlobalDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare global DLQ: %w", err)
	}

	for _, kind := range models.EventKinds {
		queue := eventQueues[kind]
		dlx := queue + dlxSuffix
		dlq := queue + dlqSuffix

		if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare %s: %w", dlx, err)
		}
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, "", dlx, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", dlq, err)
		}
		if err := ch.QueueBind(GlobalDLQ, "", dlx, false, nil); err != nil {
			return fmt.Errorf("failed to bind global DLQ to %s: %w", dlx, err)
		}

		args := amqp.Table{"x-dead-letter-exchange": dlx}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, routingKeys[kind], ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", queue, err)
		}
	}

	return nil
}
