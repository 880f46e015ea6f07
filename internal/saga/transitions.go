package saga

import (
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
)

// Step is the outcome of applying one event to one saga instance
type Step struct {
	From    models.SagaState
	To      models.SagaState
	Publish []models.Message
}

// Final reports whether the saga is removed once the step commits
func (s Step) Final() bool {
	return s.To == models.StateFinal
}

// Apply is the order-fulfilment transition table. It never mutates current;
// the returned instance is a fresh copy carrying the new state.
//
// current is nil when no saga exists for the event's correlation id.
// Events without a matching edge return a *models.ProtocolError.
func Apply(current *models.SagaInstance, evt models.Event, now time.Time) (*models.SagaInstance, Step, error) {
	from := models.StateInitial
	if current != nil {
		from = current.CurrentState
	}

	if current == nil {
		created, ok := evt.(models.OrderCreated)
		if !ok {
			return nil, Step{}, &models.ProtocolError{
				CorrelationID: evt.SagaID(),
				State:         from,
				Event:         evt.Kind(),
				Reason:        models.ErrSagaNotFound,
			}
		}
		return onOrderCreated(created, now)
	}

	next := current.Clone()
	next.Updated = now
	step := Step{From: from}

	switch e := evt.(type) {
	case models.PaymentProcessed:
		if from != models.StateOrderReceived {
			break
		}
		next.PaymentCompleted = e.Success
		if e.Success {
			step.To = models.StatePaymentCompleted
			step.Publish = []models.Message{models.UpdateInventory{
				CorrelationID: next.CorrelationID,
				OrderID:       next.OrderID,
				Items:         next.Items,
			}}
		} else {
			step.To = models.StatePaymentFailed
			step.Publish = []models.Message{models.CompensateOrder{
				CorrelationID: next.CorrelationID,
				OrderID:       next.OrderID,
			}}
		}

	case models.InventoryUpdated:
		if from != models.StatePaymentCompleted {
			break
		}
		next.InventoryUpdated = e.Success
		if e.Success {
			step.To = models.StateOrderCompleted
			step.Publish = []models.Message{models.OrderConfirmed{
				CorrelationID: next.CorrelationID,
				OrderID:       next.OrderID,
			}}
		} else {
			step.To = models.StateInventoryFailed
			step.Publish = []models.Message{
				models.CompensatePayment{CorrelationID: next.CorrelationID, OrderID: next.OrderID},
				models.CompensateOrder{CorrelationID: next.CorrelationID, OrderID: next.OrderID},
			}
		}

	case models.PaymentCompensated:
		if from == models.StateInventoryFailed {
			step.To = models.StateOrderFailed
		}

	case models.InventoryCompensated:
		if from == models.StatePaymentFailed {
			step.To = models.StateOrderFailed
		}

	case models.OrderCompensated:
		if from == models.StatePaymentFailed || from == models.StateOrderFailed {
			step.To = models.StateFinal
		}
	}

	if step.To == "" {
		return nil, Step{}, &models.ProtocolError{
			CorrelationID: evt.SagaID(),
			State:         from,
			Event:         evt.Kind(),
			Reason:        models.ErrNoTransition,
		}
	}

	next.CurrentState = step.To
	return next, step, nil
}

func onOrderCreated(e models.OrderCreated, now time.Time) (*models.SagaInstance, Step, error) {
	inst := &models.SagaInstance{
		CorrelationID: e.CorrelationID,
		OrderID:       e.OrderID,
		CurrentState:  models.StateOrderReceived,
		Amount:        e.Amount,
		Items:         append([]models.OrderItem(nil), e.Items...),
		Created:       now,
		Updated:       now,
	}

	return inst, Step{
		From: models.StateInitial,
		To:   models.StateOrderReceived,
		Publish: []models.Message{models.ProcessPaymentRequest{
			CorrelationID: e.CorrelationID,
			OrderID:       e.OrderID,
			Amount:        e.Amount,
		}},
	}, nil
}
