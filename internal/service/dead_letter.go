package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
)

const DefaultDeadLetterMaxRetries = 3

// DeadLetterRepository defines the contract for dead-letter persistence
type DeadLetterRepository interface {
	InsertDeadLetter(ctx context.Context, msg *models.DeadLetterMessage) (int64, error)
	FetchRetryable(ctx context.Context, maxRetries int) ([]models.DeadLetterMessage, error)
	SaveAttempts(ctx context.Context, msgs []models.DeadLetterMessage) error
}

// EventPublisher re-emits a decoded event onto the broker
type EventPublisher interface {
	Publish(ctx context.Context, msg models.Message) error
}

// DeadLetterHandler parks failed inbound events and republishes them with a bounded retry count.
// Only one handler per deployment may run ProcessDeadLetterMessages; rows are not claimed,
// so two concurrent scans republish the same dead letter twice.
type DeadLetterHandler struct {
	repo       DeadLetterRepository
	publisher  EventPublisher
	logger     *slog.Logger
	maxRetries int
	now        func() time.Time
}

func NewDeadLetterHandler(r DeadLetterRepository, p EventPublisher, maxRetries int, l *slog.Logger) *DeadLetterHandler {
	if maxRetries <= 0 {
		maxRetries = DefaultDeadLetterMaxRetries
	}
	return &DeadLetterHandler{
		repo:       r,
		publisher:  p,
		logger:     l.With("component", "dead_letter"),
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// HandleFailedMessage stores content as a Pending dead letter with RetryCount 0.
// A store failure is logged and returned as a *models.PersistenceError.
func (h *DeadLetterHandler) HandleFailedMessage(ctx context.Context, content []byte, errMsg string, source models.MessageKind) error {
	msg := &models.DeadLetterMessage{
		MessageContent: string(content),
		Source:         string(source),
		Error:          errMsg,
		CreatedAt:      h.now(),
		RetryCount:     0,
		Status:         models.DeadLetterPending,
	}

	id, err := h.repo.InsertDeadLetter(ctx, msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to persist dead letter", "source", source, "error", err)
		return &models.PersistenceError{Op: "dead-letter insert", Err: err}
	}

	metrics.DeadLettersCreated.WithLabelValues(string(source)).Inc()
	h.logger.WarnContext(ctx, "Message moved to dead-letter store",
		"dead_letter_id", id,
		"source", source,
		"error", errMsg,
	)
	return nil
}

// ProcessDeadLetterMessages republishes every Pending dead letter below the retry threshold.
// Per-message failures are recorded on the row and never abort the batch. Failing to load
// the batch or to commit the recorded attempts is returned as a *models.PersistenceError.
func (h *DeadLetterHandler) ProcessDeadLetterMessages(ctx context.Context) error {
	start := time.Now()

	batch, err := h.repo.FetchRetryable(ctx, h.maxRetries)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load dead letters", "error", err)
		return &models.PersistenceError{Op: "dead-letter load", Err: err}
	}

	metrics.DeadLetterBatchSize.Observe(float64(len(batch)))
	if len(batch) == 0 {
		return nil
	}

	attempted := make([]models.DeadLetterMessage, 0, len(batch))
	var interrupted error

	for _, msg := range batch {
		if err := ctx.Err(); err != nil {
			h.logger.Warn("Shutdown signal received, saving attempts made so far", "remaining", len(batch)-len(attempted))
			interrupted = err
			break
		}

		touched, ok := h.retry(ctx, msg)
		if ok {
			attempted = append(attempted, touched)
			continue
		}
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}
	}

	if len(attempted) > 0 {
		saveCtx := ctx
		if interrupted != nil {
			var cancel context.CancelFunc
			saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := h.repo.SaveAttempts(saveCtx, attempted); err != nil {
			h.logger.ErrorContext(ctx, "Failed to commit dead-letter attempts", "count", len(attempted), "error", err)
			return &models.PersistenceError{Op: "dead-letter commit", Err: err}
		}
	}

	h.logger.Info("Dead-letter scan finished",
		"loaded", len(batch),
		"attempted", len(attempted),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if interrupted != nil {
		return fmt.Errorf("dead-letter scan interrupted: %w", interrupted)
	}
	return nil
}

// retry makes one replay attempt. ok is false when the row must be left untouched:
// an unknown source, or a publish cut short by ctx.
func (h *DeadLetterHandler) retry(ctx context.Context, msg models.DeadLetterMessage) (models.DeadLetterMessage, bool) {
	l := h.logger.With("dead_letter_id", msg.ID, "source", msg.Source)

	err := h.republish(ctx, msg)
	if err != nil && ctx.Err() != nil {
		// Interrupted by shutdown, not a failed replay
		l.WarnContext(ctx, "Dead-letter replay interrupted, leaving record untouched", "error", err)
		return msg, false
	}

	var unknown *models.UnknownSourceError
	if errors.As(err, &unknown) {
		l.WarnContext(ctx, "Unknown dead-letter source, leaving record pending")
		metrics.DeadLetterReplays.WithLabelValues(msg.Source, "unknown_source").Inc()
		return msg, false
	}

	at := h.now()
	msg.RetryCount++
	msg.LastRetryAt = &at

	switch {
	case msg.RetryCount >= h.maxRetries:
		msg.Status = models.DeadLetterFailed
		l.ErrorContext(ctx, "Dead letter exhausted its retries", "retry_count", msg.RetryCount, "error", err)
		metrics.DeadLetterReplays.WithLabelValues(msg.Source, "failed").Inc()
	case err != nil:
		l.WarnContext(ctx, "Dead-letter replay failed", "retry_count", msg.RetryCount, "error", err)
		metrics.DeadLetterReplays.WithLabelValues(msg.Source, "error").Inc()
	default:
		msg.Status = models.DeadLetterProcessed
		l.InfoContext(ctx, "Dead letter republished", "retry_count", msg.RetryCount)
		metrics.DeadLetterReplays.WithLabelValues(msg.Source, "processed").Inc()
	}

	return msg, true
}

func (h *DeadLetterHandler) republish(ctx context.Context, msg models.DeadLetterMessage) error {
	evt, err := models.DecodeEvent(msg.Source, []byte(msg.MessageContent))
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(ctx, evt); err != nil {
		return fmt.Errorf("republish %s: %w", msg.Source, err)
	}
	return nil
}
