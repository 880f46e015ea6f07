package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Guizzs26/go-saga-orchestrator/internal/resilience"
	"github.com/Guizzs26/go-saga-orchestrator/internal/service"
)

type HealthChecker interface {
	Check(ctx context.Context) service.HealthReport
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type BreakerState interface {
	State() resilience.CircuitState
}

type Handler struct {
	health   HealthChecker
	db       Pinger
	brokerUp func() bool
	breaker  BreakerState
	logger   *slog.Logger
}

func NewHandler(health HealthChecker, db Pinger, brokerUp func() bool, breaker BreakerState, logger *slog.Logger) *Handler {
	return &Handler{
		health:   health,
		db:       db,
		brokerUp: brokerUp,
		breaker:  breaker,
		logger:   logger.With("component", "http"),
	}
}

// Health returns 200 for Healthy and Degraded, 503 for Unhealthy
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == service.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, report)
}

type readiness struct {
	Database string `json:"database"`
	Broker   string `json:"broker"`
	Circuit  string `json:"circuit"`
}

// Ready fails while the database or the broker consumer link is down. An open circuit is reported but not fatal.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	res := readiness{Database: "ok", Broker: "ok", Circuit: h.breaker.State().String()}
	status := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "Readiness: database ping failed", "error", err)
		res.Database = "down"
		status = http.StatusServiceUnavailable
	}
	if !h.brokerUp() {
		res.Broker = "down"
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, res)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}
