package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
)

// ReconnectingPublisher shares one RabbitMQClient between the saga machine and the
// dead-letter handler and redials on the next Publish after the link drops.
// Retries are left to the caller's resilience policy.
type ReconnectingPublisher struct {
	url    string
	logger *slog.Logger
	dial   func(url string, l *slog.Logger) (publishClient, error)

	mu     sync.Mutex
	client publishClient
}

type publishClient interface {
	Publish(ctx context.Context, msg models.Message) error
	IsHealthy() bool
	Close() error
}

func NewReconnectingPublisher(url string, l *slog.Logger) *ReconnectingPublisher {
	return &ReconnectingPublisher{
		url:    url,
		logger: l.With("component", "publisher"),
		dial: func(url string, l *slog.Logger) (publishClient, error) {
			c, err := NewRabbitMQClient(url, l)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func (p *ReconnectingPublisher) Publish(ctx context.Context, msg models.Message) error {
	client, err := p.current()
	if err != nil {
		return err
	}
	return client.Publish(ctx, msg)
}

// IsHealthy reports whether the current link is usable without redialing
func (p *ReconnectingPublisher) IsHealthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsHealthy()
}

func (p *ReconnectingPublisher) current() (publishClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.client.IsHealthy() {
		return p.client, nil
	}

	if p.client != nil {
		p.client.Close()
		p.client = nil
		metrics.RabbitMQReconnections.Inc()
		p.logger.Warn("RabbitMQ publisher link lost, redialing")
	}

	client, err := p.dial(p.url, p.logger)
	if err != nil {
		return nil, fmt.Errorf("publisher unavailable: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *ReconnectingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
