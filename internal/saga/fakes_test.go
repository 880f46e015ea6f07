package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/internal/resilience"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testPolicy() *resilience.Policy {
	return resilience.New(resilience.DefaultConfig(), discardLogger(), resilience.WithSleeper(noSleep))
}

// memoryRepo stages writes and applies them only when fn succeeds, like a real transaction.
// It deliberately takes no row lock so tests can observe the machine's own serialization.
type memoryRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.SagaInstance

	active     map[uuid.UUID]int
	overlapped bool
	hold       time.Duration

	writeErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		rows:   make(map[uuid.UUID]*models.SagaInstance),
		active: make(map[uuid.UUID]int),
	}
}

func (r *memoryRepo) get(id uuid.UUID) *models.SagaInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].Clone()
}

func (r *memoryRepo) WithinLock(ctx context.Context, id uuid.UUID, fn func(context.Context, *models.SagaInstance, Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.active[id]++
	if r.active[id] > 1 {
		r.overlapped = true
	}
	current := r.rows[id].Clone()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active[id]--
		r.mu.Unlock()
	}()

	if r.hold > 0 {
		time.Sleep(r.hold)
	}

	w := &stagedWriter{repo: r}
	if err := fn(ctx, current, w); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range w.ops {
		op()
	}
	return nil
}

type stagedWriter struct {
	repo *memoryRepo
	ops  []func()
}

func (w *stagedWriter) Insert(_ context.Context, s *models.SagaInstance) error {
	if w.repo.writeErr != nil {
		return w.repo.writeErr
	}
	if w.repo.get(s.CorrelationID) != nil {
		return models.ErrSagaExists
	}
	c := s.Clone()
	w.ops = append(w.ops, func() { w.repo.rows[c.CorrelationID] = c })
	return nil
}

func (w *stagedWriter) Update(_ context.Context, s *models.SagaInstance) error {
	if w.repo.writeErr != nil {
		return w.repo.writeErr
	}
	c := s.Clone()
	w.ops = append(w.ops, func() { w.repo.rows[c.CorrelationID] = c })
	return nil
}

func (w *stagedWriter) Remove(_ context.Context, id uuid.UUID) error {
	if w.repo.writeErr != nil {
		return w.repo.writeErr
	}
	w.ops = append(w.ops, func() { delete(w.repo.rows, id) })
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	sent     []models.Message
	failures int // remaining publish calls that fail; negative fails forever
}

var errBrokerDown = errors.New("broker unavailable")

func (p *recordingPublisher) Publish(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures != 0 {
		if p.failures > 0 {
			p.failures--
		}
		return errBrokerDown
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *recordingPublisher) messages() []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Message(nil), p.sent...)
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}

type deadLetterCall struct {
	content string
	errMsg  string
	source  models.MessageKind
}

type recordingSink struct {
	mu    sync.Mutex
	calls []deadLetterCall
	err   error
}

func (s *recordingSink) HandleFailedMessage(_ context.Context, content []byte, errMsg string, source models.MessageKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, deadLetterCall{content: string(content), errMsg: errMsg, source: source})
	return nil
}
