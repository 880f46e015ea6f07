package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/internal/saga"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WithinLock opens a transaction, locks the saga row with SELECT ... FOR UPDATE and
// hands it to fn. The transaction commits only if fn returns nil and ctx is still live.
func (r *PostgresRepository) WithinLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, current *models.SagaInstance, w saga.Writer) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &models.PersistenceError{Op: "begin saga transaction", Err: err}
	}
	defer tx.Rollback(ctx)

	current, err := loadForUpdate(ctx, tx, id)
	if err != nil {
		return &models.PersistenceError{Op: "load saga", Err: err}
	}

	if err := fn(ctx, current, &sagaWriter{tx: tx}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("saga %s not committed: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return &models.PersistenceError{Op: "commit saga", Err: err}
	}
	return nil
}

func loadForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.SagaInstance, error) {
	query := `
		SELECT correlation_id, order_id, current_state, amount,
		       payment_completed, inventory_updated, created_at, updated_at
		FROM order_saga_states
		WHERE correlation_id = $1
		FOR UPDATE
	`

	var s models.SagaInstance
	err := tx.QueryRow(ctx, query, id).Scan(
		&s.CorrelationID,
		&s.OrderID,
		&s.CurrentState,
		&s.Amount,
		&s.PaymentCompleted,
		&s.InventoryUpdated,
		&s.Created,
		&s.Updated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan saga %s: %w", id, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT product_id, quantity
		FROM order_items
		WHERE correlation_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query items of saga %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan item of saga %s: %w", id, err)
		}
		s.Items = append(s.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &s, nil
}

type sagaWriter struct {
	tx pgx.Tx
}

// Insert returns models.ErrSagaExists when a concurrent transaction created the row first
func (w *sagaWriter) Insert(ctx context.Context, s *models.SagaInstance) error {
	tag, err := w.tx.Exec(ctx, `
		INSERT INTO order_saga_states
			(correlation_id, order_id, current_state, amount, payment_completed, inventory_updated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (correlation_id) DO NOTHING
	`, s.CorrelationID, s.OrderID, string(s.CurrentState), s.Amount, s.PaymentCompleted, s.InventoryUpdated, s.Created, s.Updated)
	if err != nil {
		return &models.PersistenceError{Op: "insert saga", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSagaExists
	}

	if len(s.Items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, item := range s.Items {
		batch.Queue(`
			INSERT INTO order_items (correlation_id, position, product_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, s.CorrelationID, i, item.ProductID, item.Quantity)
	}

	br := w.tx.SendBatch(ctx, batch)
	defer br.Close()
	for range s.Items {
		if _, err := br.Exec(); err != nil {
			return &models.PersistenceError{Op: "insert order items", Err: err}
		}
	}
	return nil
}

// Update writes the mutable saga columns. Items are fixed once the saga is created.
func (w *sagaWriter) Update(ctx context.Context, s *models.SagaInstance) error {
	tag, err := w.tx.Exec(ctx, `
		UPDATE order_saga_states
		SET current_state = $2,
		    payment_completed = $3,
		    inventory_updated = $4,
		    updated_at = $5
		WHERE correlation_id = $1
	`, s.CorrelationID, string(s.CurrentState), s.PaymentCompleted, s.InventoryUpdated, s.Updated)
	if err != nil {
		return &models.PersistenceError{Op: "update saga", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &models.PersistenceError{Op: "update saga", Err: models.ErrSagaNotFound}
	}
	return nil
}

func (w *sagaWriter) Remove(ctx context.Context, id uuid.UUID) error {
	if _, err := w.tx.Exec(ctx, `DELETE FROM order_saga_states WHERE correlation_id = $1`, id); err != nil {
		return &models.PersistenceError{Op: "remove saga", Err: err}
	}
	return nil
}

// CountByStates counts sagas currently in any of states
func (r *PostgresRepository) CountByStates(ctx context.Context, states []models.SagaState) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_saga_states WHERE current_state = ANY($1)
	`, stateNames(states)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sagas by state: %w", err)
	}
	return n, nil
}

// CountStale counts sagas created before cutoff that are not in any of the excluded states
func (r *PostgresRepository) CountStale(ctx context.Context, cutoff time.Time, excluded []models.SagaState) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM order_saga_states
		WHERE created_at < $1 AND NOT (current_state = ANY($2))
	`, cutoff, stateNames(excluded)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale sagas: %w", err)
	}
	return n, nil
}

func stateNames(states []models.SagaState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
