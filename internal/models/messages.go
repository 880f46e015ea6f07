package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// amounts travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// MessageKind names a message type. For inbound events it doubles as the dead-letter Source tag.
type MessageKind string

const (
	KindOrderCreated         MessageKind = "OrderCreated"
	KindPaymentProcessed     MessageKind = "PaymentProcessed"
	KindInventoryUpdated     MessageKind = "InventoryUpdated"
	KindOrderCompensated     MessageKind = "OrderCompensated"
	KindPaymentCompensated   MessageKind = "PaymentCompensated"
	KindInventoryCompensated MessageKind = "InventoryCompensated"

	KindProcessPaymentRequest MessageKind = "ProcessPaymentRequest"
	KindUpdateInventory       MessageKind = "UpdateInventory"
	KindCompensateOrder       MessageKind = "CompensateOrder"
	KindCompensatePayment     MessageKind = "CompensatePayment"
	KindOrderConfirmed        MessageKind = "OrderConfirmed"
)

// EventKinds lists the inbound events the saga reacts to
var EventKinds = []MessageKind{
	KindOrderCreated,
	KindPaymentProcessed,
	KindInventoryUpdated,
	KindOrderCompensated,
	KindPaymentCompensated,
	KindInventoryCompensated,
}

// Message is anything that travels over the broker
type Message interface {
	Kind() MessageKind
	SagaID() uuid.UUID
}

// Event is an inbound message that drives the saga
type Event interface {
	Message
	isEvent()
}

type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Inbound events

type OrderCreated struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Items         []OrderItem     `json:"items"`
}

type PaymentProcessed struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
	Success       bool      `json:"success"`
}

type InventoryUpdated struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
	Success       bool      `json:"success"`
}

type OrderCompensated struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
	Success       bool      `json:"success"`
}

type PaymentCompensated struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
	Success       bool      `json:"success"`
}

type InventoryCompensated struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
	Success       bool      `json:"success"`
}

// Outbound commands and notifications

type ProcessPaymentRequest struct {
	CorrelationID uuid.UUID       `json:"correlationId"`
	OrderID       string          `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
}

type UpdateInventory struct {
	CorrelationID uuid.UUID   `json:"correlationId"`
	OrderID       string      `json:"orderId"`
	Items         []OrderItem `json:"items"`
}

type CompensateOrder struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
}

type CompensatePayment struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
}

type OrderConfirmed struct {
	CorrelationID uuid.UUID `json:"correlationId"`
	OrderID       string    `json:"orderId"`
}

func (OrderCreated) Kind() MessageKind         { return KindOrderCreated }
func (PaymentProcessed) Kind() MessageKind     { return KindPaymentProcessed }
func (InventoryUpdated) Kind() MessageKind     { return KindInventoryUpdated }
func (OrderCompensated) Kind() MessageKind     { return KindOrderCompensated }
func (PaymentCompensated) Kind() MessageKind   { return KindPaymentCompensated }
func (InventoryCompensated) Kind() MessageKind { return KindInventoryCompensated }

func (ProcessPaymentRequest) Kind() MessageKind { return KindProcessPaymentRequest }
func (UpdateInventory) Kind() MessageKind       { return KindUpdateInventory }
func (CompensateOrder) Kind() MessageKind       { return KindCompensateOrder }
func (CompensatePayment) Kind() MessageKind     { return KindCompensatePayment }
func (OrderConfirmed) Kind() MessageKind        { return KindOrderConfirmed }

func (e OrderCreated) SagaID() uuid.UUID         { return e.CorrelationID }
func (e PaymentProcessed) SagaID() uuid.UUID     { return e.CorrelationID }
func (e InventoryUpdated) SagaID() uuid.UUID     { return e.CorrelationID }
func (e OrderCompensated) SagaID() uuid.UUID     { return e.CorrelationID }
func (e PaymentCompensated) SagaID() uuid.UUID   { return e.CorrelationID }
func (e InventoryCompensated) SagaID() uuid.UUID { return e.CorrelationID }

func (c ProcessPaymentRequest) SagaID() uuid.UUID { return c.CorrelationID }
func (c UpdateInventory) SagaID() uuid.UUID       { return c.CorrelationID }
func (c CompensateOrder) SagaID() uuid.UUID       { return c.CorrelationID }
func (c CompensatePayment) SagaID() uuid.UUID     { return c.CorrelationID }
func (c OrderConfirmed) SagaID() uuid.UUID        { return c.CorrelationID }

func (OrderCreated) isEvent()         {}
func (PaymentProcessed) isEvent()     {}
func (InventoryUpdated) isEvent()     {}
func (OrderCompensated) isEvent()     {}
func (PaymentCompensated) isEvent()   {}
func (InventoryCompensated) isEvent() {}

// DecodeEvent deserializes a payload into the event type named by kind.
// Unknown kinds return an *UnknownSourceError.
func DecodeEvent(kind string, payload []byte) (Event, error) {
	var (
		evt Event
		err error
	)

	switch MessageKind(kind) {
	case KindOrderCreated:
		evt, err = decode[OrderCreated](payload)
	case KindPaymentProcessed:
		evt, err = decode[PaymentProcessed](payload)
	case KindInventoryUpdated:
		evt, err = decode[InventoryUpdated](payload)
	case KindOrderCompensated:
		evt, err = decode[OrderCompensated](payload)
	case KindPaymentCompensated:
		evt, err = decode[PaymentCompensated](payload)
	case KindInventoryCompensated:
		evt, err = decode[InventoryCompensated](payload)
	default:
		return nil, &UnknownSourceError{Source: kind}
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return evt, nil
}

func decode[T Event](payload []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}
