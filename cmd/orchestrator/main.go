package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/broker"
	"github.com/Guizzs26/go-saga-orchestrator/internal/config"
	"github.com/Guizzs26/go-saga-orchestrator/internal/db"
	"github.com/Guizzs26/go-saga-orchestrator/internal/httpx"
	"github.com/Guizzs26/go-saga-orchestrator/internal/resilience"
	"github.com/Guizzs26/go-saga-orchestrator/internal/saga"
	"github.com/Guizzs26/go-saga-orchestrator/internal/service"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/infra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if !run() {
		os.Exit(1)
	}
}

// run owns every resource so its deferred cleanup completes before main exits
func run() bool {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Saga orchestrator initializing",
		"workers", cfg.ConsumerWorkers,
		"prefetch", cfg.ConsumerPrefetch,
	)

	postgres, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("Fatal error connecting to Postgres", "error", err)
		return false
	}
	defer postgres.Close()

	if err := postgres.EnsureSchema(ctx); err != nil {
		logger.Error("Fatal error preparing schema", "error", err)
		return false
	}

	publisher := broker.NewReconnectingPublisher(cfg.RabbitMQURL, logger)
	defer publisher.Close()

	policy := resilience.New(resilience.Config{
		RetryCount:       cfg.RetryCount,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		FailureThreshold: cfg.BreakerFailureThreshold,
		BreakDuration:    cfg.BreakerOpenDuration,
		Timeout:          cfg.TransitionTimeout,
	}, logger)

	deadLetters := service.NewDeadLetterHandler(postgres, publisher, cfg.DeadLetterMaxRetries, logger)
	machine := saga.NewMachine(postgres, publisher, deadLetters, policy, logger)
	brokerDLQ := service.NewBrokerDeadLetterService(deadLetters, logger)
	processor := service.NewDeadLetterProcessor(deadLetters, cfg.DeadLetterInterval, cfg.DeadLetterErrorBackoff, logger)
	health := service.NewHealthChecker(postgres, cfg.HealthFailedThreshold, cfg.HealthStaleThreshold, cfg.HealthStaleAfter, logger)

	var consuming atomic.Bool
	server := &http.Server{
		Addr:         ":" + cfg.ObservabilityPort,
		Handler:      httpx.NewRouter(httpx.NewHandler(health, postgres, consuming.Load, policy.Breaker(), logger)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runConsumer(gctx, cfg, machine, brokerDLQ, &consuming, logger)
		return nil
	})

	g.Go(func() error {
		return processor.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("Observability server online", "url", "http://localhost:"+cfg.ObservabilityPort+"/metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Orchestrator stopped with error", "error", err)
		return false
	}
	logger.Info("Shutdown complete")
	return true
}

// runConsumer keeps a consumer attached to the broker, reconnecting with backoff until ctx is done
func runConsumer(ctx context.Context, cfg *config.Config, handler broker.EventHandler, monitor broker.DeadLetterMonitor, consuming *atomic.Bool, logger *slog.Logger) {
	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Consumer loop stopped")
			return
		default:
		}

		consumer, err := broker.NewRabbitMQConsumer(cfg.RabbitMQURL, cfg.ConsumerPrefetch, cfg.ConsumerWorkers, handler, monitor, logger)
		if err != nil {
			wait := connBackoff.Next()
			logger.Error("RabbitMQ connection failed, retrying...",
				"wait_duration", wait,
				"error", err,
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		connBackoff.Reset()
		consuming.Store(true)
		logger.Info("Connected to Broker. Listening for saga events...")

		if err := consumer.Listen(ctx); err != nil {
			logger.Error("Consumer connection lost", "error", err)
		}

		consuming.Store(false)
		consumer.Close()
	}
}
