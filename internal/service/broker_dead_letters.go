package service

import (
	"context"
	"log/slog"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
)

// FailedMessageSink is the parking side of DeadLetterHandler
type FailedMessageSink interface {
	HandleFailedMessage(ctx context.Context, content []byte, errMsg string, source models.MessageKind) error
}

// BrokerDeadLetterService drains the global broker DLQ. Messages of a known event kind are
// copied into the dead-letter store so the replay loop can retry them; everything else is
// only logged and counted.
type BrokerDeadLetterService struct {
	sink   FailedMessageSink
	logger *slog.Logger
}

func NewBrokerDeadLetterService(s FailedMessageSink, l *slog.Logger) *BrokerDeadLetterService {
	return &BrokerDeadLetterService{sink: s, logger: l.With("component", "broker_dlq")}
}

// HandleDeadLetter returns an error only when the message should stay on the DLQ
func (s *BrokerDeadLetterService) HandleDeadLetter(ctx context.Context, queue, messageType, reason string, body []byte) error {
	metrics.BrokerDeadLetters.WithLabelValues(queue).Inc()

	l := s.logger.With("queue", queue, "message_type", messageType, "reason", reason)

	if !isEventKind(messageType) {
		l.WarnContext(ctx, "Broker dead letter with unknown message type dropped", "bytes", len(body))
		return nil
	}

	l.WarnContext(ctx, "Broker dead letter captured, moving to dead-letter store")

	if err := s.sink.HandleFailedMessage(ctx, body, "rejected by broker: "+reason, models.MessageKind(messageType)); err != nil {
		l.ErrorContext(ctx, "Failed to capture broker dead letter", "error", err)
		return err
	}
	return nil
}

func isEventKind(kind string) bool {
	for _, k := range models.EventKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}
