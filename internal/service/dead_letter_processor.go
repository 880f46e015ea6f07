package service

import (
	"context"
	"log/slog"
	"time"
)

// DeadLetterScanner is the part of DeadLetterHandler the processor drives
type DeadLetterScanner interface {
	ProcessDeadLetterMessages(ctx context.Context) error
}

// DeadLetterProcessor runs a scan immediately and then every interval until ctx is done.
// A failed scan shortens the wait to errorBackoff instead of stopping the loop.
// Deploy a single instance: concurrent processors republish the same rows.
type DeadLetterProcessor struct {
	scanner      DeadLetterScanner
	interval     time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
	after        func(time.Duration) <-chan time.Time
}

func NewDeadLetterProcessor(s DeadLetterScanner, interval, errorBackoff time.Duration, l *slog.Logger) *DeadLetterProcessor {
	return &DeadLetterProcessor{
		scanner:      s,
		interval:     interval,
		errorBackoff: errorBackoff,
		logger:       l.With("component", "dead_letter_processor"),
		after:        time.After,
	}
}

func (p *DeadLetterProcessor) Run(ctx context.Context) error {
	p.logger.Info("Dead-letter processor started", "interval", p.interval, "error_backoff", p.errorBackoff)
	defer p.logger.Info("Dead-letter processor stopped")

	for {
		wait := p.interval
		if err := p.scanner.ProcessDeadLetterMessages(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait = p.errorBackoff
			p.logger.Error("Dead-letter scan failed", "retry_in", wait, "error", err)
		}

		select {
		case <-p.after(wait):
		case <-ctx.Done():
			return nil
		}
	}
}
