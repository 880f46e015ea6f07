package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	healthy bool
	closed  bool
	sent    []models.Message
}

func (f *fakeClient) Publish(_ context.Context, msg models.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeClient) IsHealthy() bool { return f.healthy && !f.closed }
func (f *fakeClient) Close() error    { f.closed = true; return nil }

func TestReconnectingPublisher_RedialsAfterLinkLoss(t *testing.T) {
	var dialed []*fakeClient
	p := NewReconnectingPublisher("amqp://test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.dial = func(string, *slog.Logger) (publishClient, error) {
		c := &fakeClient{healthy: true}
		dialed = append(dialed, c)
		return c, nil
	}

	msg := models.OrderConfirmed{CorrelationID: uuid.New(), OrderID: "42"}
	require.NoError(t, p.Publish(context.Background(), msg))
	require.NoError(t, p.Publish(context.Background(), msg))
	assert.Len(t, dialed, 1, "healthy link is reused")

	dialed[0].healthy = false
	require.NoError(t, p.Publish(context.Background(), msg))

	require.Len(t, dialed, 2)
	assert.True(t, dialed[0].closed)
	assert.Len(t, dialed[1].sent, 1)
	assert.True(t, p.IsHealthy())
}

func TestReconnectingPublisher_DialFailure(t *testing.T) {
	p := NewReconnectingPublisher("amqp://test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	dialErr := errors.New("connection refused")
	p.dial = func(string, *slog.Logger) (publishClient, error) { return nil, dialErr }

	err := p.Publish(context.Background(), models.OrderConfirmed{CorrelationID: uuid.New()})

	assert.ErrorIs(t, err, dialErr)
	assert.False(t, p.IsHealthy())
}
