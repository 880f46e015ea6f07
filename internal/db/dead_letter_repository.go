package db

import (
	"context"
	"fmt"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/jackc/pgx/v5"
)

func (r *PostgresRepository) InsertDeadLetter(ctx context.Context, msg *models.DeadLetterMessage) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO dead_letter_messages
			(message_content, source, error, created_at, last_retry_at, retry_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, msg.MessageContent, msg.Source, msg.Error, msg.CreatedAt, msg.LastRetryAt, msg.RetryCount, string(msg.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert dead letter: %w", err)
	}
	return id, nil
}

// FetchRetryable loads every Pending dead letter whose retry count is still below maxRetries
func (r *PostgresRepository) FetchRetryable(ctx context.Context, maxRetries int) ([]models.DeadLetterMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, message_content, source, error, created_at, last_retry_at, retry_count, status
		FROM dead_letter_messages
		WHERE status = $1 AND retry_count < $2
		ORDER BY id
	`, string(models.DeadLetterPending), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.DeadLetterMessage])
	if err != nil {
		return nil, fmt.Errorf("scan dead letters: %w", err)
	}
	return msgs, nil
}

// SaveAttempts commits the retry bookkeeping of one scan in a single transaction
func (r *PostgresRepository) SaveAttempts(ctx context.Context, msgs []models.DeadLetterMessage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dead-letter commit: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(`
			UPDATE dead_letter_messages
			SET retry_count = $2, last_retry_at = $3, status = $4
			WHERE id = $1
		`, m.ID, m.RetryCount, m.LastRetryAt, string(m.Status))
	}

	br := tx.SendBatch(ctx, batch)
	for range msgs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("update dead letter: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close dead-letter batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dead letters: %w", err)
	}

	r.logger.Debug("Dead-letter attempts committed", "count", len(msgs))
	return nil
}
