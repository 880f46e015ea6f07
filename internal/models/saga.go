package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SagaState is the persisted position of an order saga
type SagaState string

const (
	StateInitial          SagaState = "Initial"
	StateOrderReceived    SagaState = "OrderReceived"
	StatePaymentCompleted SagaState = "PaymentCompleted"
	StatePaymentFailed    SagaState = "PaymentFailed"
	StateInventoryFailed  SagaState = "InventoryFailed"
	StateOrderCompleted   SagaState = "OrderCompleted"
	StateOrderFailed      SagaState = "OrderFailed"
	// StateFinal is never persisted: reaching it removes the saga row.
	StateFinal SagaState = "Final"
)

var AllStates = []SagaState{
	StateInitial,
	StateOrderReceived,
	StatePaymentCompleted,
	StatePaymentFailed,
	StateInventoryFailed,
	StateOrderCompleted,
	StateOrderFailed,
}

// FailedStates are counted by the health check as failed sagas
var FailedStates = []SagaState{StateOrderFailed, StatePaymentFailed, StateInventoryFailed}

func (s SagaState) IsTerminal() bool {
	return s == StateOrderCompleted || s == StateOrderFailed || s == StateFinal
}

type SagaInstance struct {
	CorrelationID    uuid.UUID
	OrderID          string
	CurrentState     SagaState
	Amount           decimal.Decimal
	Items            []OrderItem
	PaymentCompleted bool
	InventoryUpdated bool
	Created          time.Time
	Updated          time.Time
}

// Clone returns a deep copy so transitions never mutate the loaded row in place
func (s *SagaInstance) Clone() *SagaInstance {
	if s == nil {
		return nil
	}
	c := *s
	c.Items = slices.Clone(s.Items)
	return &c
}
