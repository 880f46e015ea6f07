package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeFinalized
	OutcomeIgnored
	OutcomeDeadLettered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeFinalized:
		return "finalized"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeDeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

// Result describes what handling one inbound event did to its saga
type Result struct {
	Outcome   Outcome
	From      models.SagaState
	To        models.SagaState
	Published int
	// Ignored carries the reason when Outcome is OutcomeIgnored
	Ignored *models.ProtocolError
}

// Machine drives the order-fulfilment saga. Events for the same correlation id are
// serialized by an in-process key lock and by the repository row lock; events for
// different ids run in parallel.
type Machine struct {
	repo        Repository
	publisher   Publisher
	deadLetters DeadLetterSink
	executor    Executor
	locks       *keyLock
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

func NewMachine(repo Repository, publisher Publisher, deadLetters DeadLetterSink, executor Executor, logger *slog.Logger) *Machine {
	return &Machine{
		repo:        repo,
		publisher:   publisher,
		deadLetters: deadLetters,
		executor:    executor,
		locks:       newKeyLock(),
		logger:      logger.With("component", "saga"),
		tracer:      otel.Tracer("github.com/Guizzs26/go-saga-orchestrator/internal/saga"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle applies evt to its saga under the resilience policy.
//
// A permanent failure parks evt in the dead-letter store and returns a
// *models.DeadLetteredError; if parking fails too, a *models.PersistenceError is
// returned. Events that match no transition are ignored and return a nil error.
func (m *Machine) Handle(ctx context.Context, evt models.Event) (Result, error) {
	start := time.Now()
	id := evt.SagaID()

	ctx, span := m.tracer.Start(ctx, "saga.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("saga.correlation_id", id.String()),
			attribute.String("saga.event", string(evt.Kind())),
		),
	)
	defer span.End()

	l := m.logger.With("correlation_id", id, "event", evt.Kind())

	unlock := m.locks.Lock(id)
	defer unlock()

	var (
		mu  sync.Mutex
		res Result
	)
	err := m.executor.Execute(ctx, func(ctx context.Context) error {
		r, err := m.apply(ctx, evt, l)
		if err != nil {
			return err
		}
		mu.Lock()
		res = r
		mu.Unlock()
		return nil
	})

	if err == nil {
		mu.Lock()
		defer mu.Unlock()
		m.observe(evt, res, start)
		span.SetAttributes(attribute.String("saga.outcome", res.Outcome.String()))
		return res, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctx.Err() != nil {
		// Shutting down: leave redelivery to the broker instead of dead-lettering
		l.WarnContext(ctx, "Transition abandoned on shutdown", "error", err)
		return Result{}, fmt.Errorf("handle %s: %w", evt.Kind(), ctx.Err())
	}

	return m.deadLetter(ctx, evt, err, l, start)
}

// apply runs one attempt: lock, transition, persist, publish. Nothing commits unless every step succeeds.
func (m *Machine) apply(ctx context.Context, evt models.Event, l *slog.Logger) (Result, error) {
	var res Result

	err := m.repo.WithinLock(ctx, evt.SagaID(), func(ctx context.Context, current *models.SagaInstance, w Writer) error {
		next, step, err := Apply(current, evt, m.now())
		if err != nil {
			var perr *models.ProtocolError
			if errors.As(err, &perr) {
				res = Result{Outcome: OutcomeIgnored, From: perr.State, To: perr.State, Ignored: perr}
				return nil
			}
			return err
		}

		switch {
		case current == nil:
			err = w.Insert(ctx, next)
		case step.Final():
			err = w.Remove(ctx, next.CorrelationID)
		default:
			err = w.Update(ctx, next)
		}
		if err != nil {
			return err
		}

		for _, msg := range step.Publish {
			if err := m.publisher.Publish(ctx, msg); err != nil {
				return fmt.Errorf("publish %s: %w", msg.Kind(), err)
			}
		}

		l.InfoContext(ctx, describe(evt, next),
			"from", step.From,
			"to", step.To,
			"published", len(step.Publish),
		)

		res = Result{Outcome: OutcomeApplied, From: step.From, To: step.To, Published: len(step.Publish)}
		if step.Final() {
			res.Outcome = OutcomeFinalized
		}
		return nil
	})

	return res, err
}

func (m *Machine) deadLetter(ctx context.Context, evt models.Event, cause error, l *slog.Logger, start time.Time) (Result, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Result{}, fmt.Errorf("serialize %s for dead-lettering: %w", evt.Kind(), err)
	}

	if err := m.deadLetters.HandleFailedMessage(ctx, payload, cause.Error(), evt.Kind()); err != nil {
		l.ErrorContext(ctx, "Dead-letter capture failed, event relies on broker redelivery",
			"cause", cause,
			"error", err,
		)
		metrics.TransitionDuration.WithLabelValues(string(evt.Kind()), "persistence_error").Observe(time.Since(start).Seconds())

		var perr *models.PersistenceError
		if errors.As(err, &perr) {
			return Result{}, err
		}
		return Result{}, &models.PersistenceError{Op: "dead-letter insert", Err: err}
	}

	l.ErrorContext(ctx, "Transition failed permanently, event dead-lettered", "error", cause)
	metrics.TransitionDuration.WithLabelValues(string(evt.Kind()), OutcomeDeadLettered.String()).Observe(time.Since(start).Seconds())

	return Result{Outcome: OutcomeDeadLettered}, &models.DeadLetteredError{Source: evt.Kind(), Err: cause}
}

func (m *Machine) observe(evt models.Event, res Result, start time.Time) {
	kind := string(evt.Kind())
	metrics.TransitionDuration.WithLabelValues(kind, res.Outcome.String()).Observe(time.Since(start).Seconds())

	if res.Outcome != OutcomeIgnored {
		metrics.SagaTransitions.WithLabelValues(kind, string(res.From), string(res.To)).Inc()
		return
	}

	reason := "no_transition"
	if errors.Is(res.Ignored, models.ErrSagaNotFound) {
		reason = "no_saga"
	}
	metrics.SagaEventsIgnored.WithLabelValues(kind, reason).Inc()
	m.logger.Warn("Event ignored",
		"correlation_id", evt.SagaID(),
		"event", kind,
		"state", res.From,
		"reason", reason,
	)
}

func describe(evt models.Event, s *models.SagaInstance) string {
	switch e := evt.(type) {
	case models.OrderCreated:
		return fmt.Sprintf("Order created: %s", e.OrderID)
	case models.PaymentProcessed:
		return fmt.Sprintf("Payment processed for order %s: success=%t", s.OrderID, e.Success)
	case models.InventoryUpdated:
		return fmt.Sprintf("Inventory updated for order %s: success=%t", s.OrderID, e.Success)
	case models.PaymentCompensated:
		return fmt.Sprintf("Payment compensated for order %s: success=%t", s.OrderID, e.Success)
	case models.InventoryCompensated:
		return fmt.Sprintf("Inventory compensated for order %s: success=%t", s.OrderID, e.Success)
	case models.OrderCompensated:
		return fmt.Sprintf("Order compensated: %s", s.OrderID)
	default:
		return "Saga transition applied"
	}
}
