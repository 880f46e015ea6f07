package saga

import (
	"context"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/google/uuid"
)

// Writer applies saga row changes inside the transaction opened by Repository.WithinLock
type Writer interface {
	Insert(ctx context.Context, s *models.SagaInstance) error
	Update(ctx context.Context, s *models.SagaInstance) error
	Remove(ctx context.Context, id uuid.UUID) error
}

// Repository loads a saga under a pessimistic row lock and keeps the lock until fn returns.
// current is nil when the row does not exist. fn returning nil commits, any error rolls back.
// Implementations must not commit once ctx is done: an attempt abandoned by its timeout
// may still be running when the next attempt starts.
type Repository interface {
	WithinLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, current *models.SagaInstance, w Writer) error) error
}

type Publisher interface {
	Publish(ctx context.Context, msg models.Message) error
}

// DeadLetterSink parks an inbound event whose transition failed permanently
type DeadLetterSink interface {
	HandleFailedMessage(ctx context.Context, content []byte, errMsg string, source models.MessageKind) error
}

// Executor runs a unit of work under the resilience policy
type Executor interface {
	Execute(ctx context.Context, work func(ctx context.Context) error) error
}
