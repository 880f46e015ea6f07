package db

import (
	"context"
	"fmt"
)

// schema is idempotent and only bootstraps an empty database; it is not a migration tool
var schema = []string{
	`CREATE TABLE IF NOT EXISTS order_saga_states (
		correlation_id    UUID PRIMARY KEY,
		order_id          TEXT NOT NULL,
		current_state     VARCHAR(64) NOT NULL,
		amount            NUMERIC(18, 2) NOT NULL DEFAULT 0,
		payment_completed BOOLEAN NOT NULL DEFAULT FALSE,
		inventory_updated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_saga_states_state ON order_saga_states (current_state, created_at)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		correlation_id UUID NOT NULL REFERENCES order_saga_states (correlation_id) ON DELETE CASCADE,
		position       INT NOT NULL,
		product_id     TEXT NOT NULL,
		quantity       INT NOT NULL,
		PRIMARY KEY (correlation_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letter_messages (
		id              BIGSERIAL PRIMARY KEY,
		message_content TEXT NOT NULL,
		source          VARCHAR(64) NOT NULL,
		error           TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		last_retry_at   TIMESTAMPTZ,
		retry_count     INT NOT NULL DEFAULT 0,
		status          VARCHAR(16) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dead_letter_messages_pending ON dead_letter_messages (status, retry_count)`,
}

// EnsureSchema creates the saga, order item and dead-letter tables when missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	r.logger.Info("Database schema ready")
	return nil
}
