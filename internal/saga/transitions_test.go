package saga

import (
	"errors"
	"testing"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	corrID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	items  = []models.OrderItem{{ProductID: "p1", Quantity: 2}}
	amount = decimal.NewFromInt(100)
	now    = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
)

func instanceIn(state models.SagaState) *models.SagaInstance {
	return &models.SagaInstance{
		CorrelationID: corrID,
		OrderID:       "42",
		CurrentState:  state,
		Amount:        amount,
		Items:         items,
		Created:       now.Add(-time.Minute),
		Updated:       now.Add(-time.Minute),
	}
}

// allEvents covers every event kind with both guard values
func allEvents() []models.Event {
	var out []models.Event
	for _, ok := range []bool{true, false} {
		out = append(out,
			models.PaymentProcessed{CorrelationID: corrID, OrderID: "42", Success: ok},
			models.InventoryUpdated{CorrelationID: corrID, OrderID: "42", Success: ok},
			models.OrderCompensated{CorrelationID: corrID, OrderID: "42", Success: ok},
			models.PaymentCompensated{CorrelationID: corrID, OrderID: "42", Success: ok},
			models.InventoryCompensated{CorrelationID: corrID, OrderID: "42", Success: ok},
		)
	}
	return append(out, models.OrderCreated{CorrelationID: corrID, OrderID: "42", Amount: amount, Items: items})
}

type edge struct {
	from    models.SagaState
	event   models.Event
	to      models.SagaState
	publish []models.Message
}

func transitionTable() []edge {
	return []edge{
		{
			from:    models.StateOrderReceived,
			event:   models.PaymentProcessed{CorrelationID: corrID, OrderID: "42", Success: true},
			to:      models.StatePaymentCompleted,
			publish: []models.Message{models.UpdateInventory{CorrelationID: corrID, OrderID: "42", Items: items}},
		},
		{
			from:    models.StateOrderReceived,
			event:   models.PaymentProcessed{CorrelationID: corrID, OrderID: "42", Success: false},
			to:      models.StatePaymentFailed,
			publish: []models.Message{models.CompensateOrder{CorrelationID: corrID, OrderID: "42"}},
		},
		{
			from:    models.StatePaymentCompleted,
			event:   models.InventoryUpdated{CorrelationID: corrID, OrderID: "42", Success: true},
			to:      models.StateOrderCompleted,
			publish: []models.Message{models.OrderConfirmed{CorrelationID: corrID, OrderID: "42"}},
		},
		{
			from:  models.StatePaymentCompleted,
			event: models.InventoryUpdated{CorrelationID: corrID, OrderID: "42", Success: false},
			to:    models.StateInventoryFailed,
			publish: []models.Message{
				models.CompensatePayment{CorrelationID: corrID, OrderID: "42"},
				models.CompensateOrder{CorrelationID: corrID, OrderID: "42"},
			},
		},
		{from: models.StateInventoryFailed, event: models.PaymentCompensated{CorrelationID: corrID, OrderID: "42", Success: true}, to: models.StateOrderFailed},
		{from: models.StateInventoryFailed, event: models.PaymentCompensated{CorrelationID: corrID, OrderID: "42", Success: false}, to: models.StateOrderFailed},
		{from: models.StatePaymentFailed, event: models.InventoryCompensated{CorrelationID: corrID, OrderID: "42", Success: true}, to: models.StateOrderFailed},
		{from: models.StatePaymentFailed, event: models.InventoryCompensated{CorrelationID: corrID, OrderID: "42", Success: false}, to: models.StateOrderFailed},
		{from: models.StatePaymentFailed, event: models.OrderCompensated{CorrelationID: corrID, OrderID: "42", Success: true}, to: models.StateFinal},
		{from: models.StatePaymentFailed, event: models.OrderCompensated{CorrelationID: corrID, OrderID: "42", Success: false}, to: models.StateFinal},
		{from: models.StateOrderFailed, event: models.OrderCompensated{CorrelationID: corrID, OrderID: "42", Success: true}, to: models.StateFinal},
		{from: models.StateOrderFailed, event: models.OrderCompensated{CorrelationID: corrID, OrderID: "42", Success: false}, to: models.StateFinal},
	}
}

func TestApply_OrderCreatedStartsSaga(t *testing.T) {
	evt := models.OrderCreated{CorrelationID: corrID, OrderID: "42", Amount: amount, Items: items}

	next, step, err := Apply(nil, evt, now)

	require.NoError(t, err)
	assert.Equal(t, models.StateInitial, step.From)
	assert.Equal(t, models.StateOrderReceived, next.CurrentState)
	assert.Equal(t, "42", next.OrderID)
	assert.True(t, amount.Equal(next.Amount))
	assert.Equal(t, items, next.Items)
	assert.False(t, next.PaymentCompleted)
	assert.False(t, next.InventoryUpdated)
	assert.Equal(t, now, next.Created)
	assert.Equal(t, []models.Message{models.ProcessPaymentRequest{CorrelationID: corrID, OrderID: "42", Amount: amount}}, step.Publish)
}

func TestApply_TransitionTable(t *testing.T) {
	for _, e := range transitionTable() {
		t.Run(string(e.from)+"/"+string(e.event.Kind()), func(t *testing.T) {
			current := instanceIn(e.from)

			next, step, err := Apply(current, e.event, now)

			require.NoError(t, err)
			assert.Equal(t, e.from, step.From)
			assert.Equal(t, e.to, step.To)
			assert.Equal(t, e.to, next.CurrentState)
			assert.Equal(t, e.publish, step.Publish)
			assert.Equal(t, now, next.Updated)
			assert.Equal(t, e.from, current.CurrentState, "current must not be mutated")
		})
	}
}

func TestApply_RecordsStepOutcomes(t *testing.T) {
	next, _, err := Apply(instanceIn(models.StateOrderReceived), models.PaymentProcessed{CorrelationID: corrID, Success: true}, now)
	require.NoError(t, err)
	assert.True(t, next.PaymentCompleted)

	next, _, err = Apply(instanceIn(models.StatePaymentCompleted), models.InventoryUpdated{CorrelationID: corrID, Success: false}, now)
	require.NoError(t, err)
	assert.False(t, next.InventoryUpdated)
}

func TestApply_NoOtherPairChangesState(t *testing.T) {
	allowed := map[string]bool{}
	for _, e := range transitionTable() {
		allowed[key(e.from, e.event)] = true
	}

	for _, state := range models.AllStates {
		if state == models.StateInitial {
			continue
		}
		for _, evt := range allEvents() {
			if allowed[key(state, evt)] {
				continue
			}
			current := instanceIn(state)

			next, step, err := Apply(current, evt, now)

			var perr *models.ProtocolError
			require.ErrorAs(t, err, &perr, "%s in %s should be rejected", evt.Kind(), state)
			assert.ErrorIs(t, err, models.ErrNoTransition)
			assert.Equal(t, state, perr.State)
			assert.Nil(t, next)
			assert.Empty(t, step.Publish)
			assert.Equal(t, state, current.CurrentState)
		}
	}
}

func TestApply_MissingSaga(t *testing.T) {
	for _, evt := range allEvents() {
		if evt.Kind() == models.KindOrderCreated {
			continue
		}
		_, _, err := Apply(nil, evt, now)
		assert.True(t, errors.Is(err, models.ErrSagaNotFound), "%s without saga", evt.Kind())
	}
}

func key(state models.SagaState, evt models.Event) string {
	k := string(state) + "|" + string(evt.Kind())
	switch e := evt.(type) {
	case models.PaymentProcessed:
		if e.Success {
			return k + "|ok"
		}
		return k + "|fail"
	case models.InventoryUpdated:
		if e.Success {
			return k + "|ok"
		}
		return k + "|fail"
	case models.PaymentCompensated:
		if e.Success {
			return k + "|ok"
		}
		return k + "|fail"
	case models.InventoryCompensated:
		if e.Success {
			return k + "|ok"
		}
		return k + "|fail"
	case models.OrderCompensated:
		if e.Success {
			return k + "|ok"
		}
		return k + "|fail"
	}
	return k
}
