package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type eventOptions struct {
	correlationID string
	orderID       string
	amount        string
	items         []string
	success       bool
}

// commandName turns OrderCreated into order-created
func commandName(kind models.MessageKind) string {
	var b strings.Builder
	for i, r := range string(kind) {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func buildEvent(kind models.MessageKind, o eventOptions) (models.Event, error) {
	id := uuid.New()
	if o.correlationID != "" {
		parsed, err := uuid.Parse(o.correlationID)
		if err != nil {
			return nil, fmt.Errorf("invalid --correlation-id: %w", err)
		}
		id = parsed
	}

	switch kind {
	case models.KindOrderCreated:
		items, err := parseItems(o.items)
		if err != nil {
			return nil, err
		}
		amount := decimal.Zero
		if o.amount != "" {
			amount, err = decimal.NewFromString(o.amount)
			if err != nil {
				return nil, fmt.Errorf("invalid --amount %q: %w", o.amount, err)
			}
		}
		return models.OrderCreated{CorrelationID: id, OrderID: o.orderID, Amount: amount, Items: items}, nil
	case models.KindPaymentProcessed:
		return models.PaymentProcessed{CorrelationID: id, OrderID: o.orderID, Success: o.success}, nil
	case models.KindInventoryUpdated:
		return models.InventoryUpdated{CorrelationID: id, OrderID: o.orderID, Success: o.success}, nil
	case models.KindOrderCompensated:
		return models.OrderCompensated{CorrelationID: id, OrderID: o.orderID, Success: o.success}, nil
	case models.KindPaymentCompensated:
		return models.PaymentCompensated{CorrelationID: id, OrderID: o.orderID, Success: o.success}, nil
	case models.KindInventoryCompensated:
		return models.InventoryCompensated{CorrelationID: id, OrderID: o.orderID, Success: o.success}, nil
	default:
		return nil, fmt.Errorf("unsupported event %q", kind)
	}
}

func parseItems(raw []string) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(raw))
	for _, s := range raw {
		sku, qty, ok := strings.Cut(s, ":")
		if !ok || sku == "" {
			return nil, fmt.Errorf("invalid --item %q: want sku:qty", s)
		}
		n, err := strconv.Atoi(qty)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid quantity in --item %q", s)
		}
		items = append(items, models.OrderItem{ProductID: sku, Quantity: n})
	}
	return items, nil
}
