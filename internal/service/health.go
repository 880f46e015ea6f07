package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/metrics"
)

type HealthStatus string

const (
	Healthy   HealthStatus = "Healthy"
	Degraded  HealthStatus = "Degraded"
	Unhealthy HealthStatus = "Unhealthy"
)

// HealthRepository exposes the saga counts the health check reads
type HealthRepository interface {
	CountByStates(ctx context.Context, states []models.SagaState) (int, error)
	CountStale(ctx context.Context, cutoff time.Time, excluded []models.SagaState) (int, error)
}

type HealthReport struct {
	Status      HealthStatus `json:"status"`
	FailedSagas int          `json:"failedSagas"`
	StaleSagas  int          `json:"staleSagas"`
	Description string       `json:"description,omitempty"`
	CheckedAt   time.Time    `json:"checkedAt"`
}

type HealthChecker struct {
	repo            HealthRepository
	failedThreshold int
	staleThreshold  int
	staleAfter      time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

func NewHealthChecker(r HealthRepository, failedThreshold, staleThreshold int, staleAfter time.Duration, l *slog.Logger) *HealthChecker {
	return &HealthChecker{
		repo:            r,
		failedThreshold: failedThreshold,
		staleThreshold:  staleThreshold,
		staleAfter:      staleAfter,
		logger:          l.With("component", "health"),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Check reports Degraded when too many sagas are failed or stuck, and Unhealthy when the counts cannot be read
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	now := h.now()
	report := HealthReport{Status: Healthy, CheckedAt: now}

	failed, err := h.repo.CountByStates(ctx, models.FailedStates)
	if err != nil {
		return h.unhealthy(ctx, report, err)
	}

	// Stale means older than the window and not in OrderCompleted or OrderFailed.
	stale, err := h.repo.CountStale(ctx, now.Add(-h.staleAfter), []models.SagaState{models.StateOrderCompleted, models.StateOrderFailed})
	if err != nil {
		return h.unhealthy(ctx, report, err)
	}

	report.FailedSagas = failed
	report.StaleSagas = stale
	metrics.FailedSagas.Set(float64(failed))
	metrics.StaleSagas.Set(float64(stale))

	if failed > h.failedThreshold || stale > h.staleThreshold {
		report.Status = Degraded
		report.Description = fmt.Sprintf("Failed sagas: %d, Stale sagas: %d", failed, stale)
		h.logger.WarnContext(ctx, "Saga health degraded", "failed", failed, "stale", stale)
	}

	return report
}

func (h *HealthChecker) unhealthy(ctx context.Context, report HealthReport, err error) HealthReport {
	h.logger.ErrorContext(ctx, "Saga health check failed", "error", err)
	report.Status = Unhealthy
	report.Description = err.Error()
	return report
}
