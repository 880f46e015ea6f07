package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Guizzs26/go-saga-orchestrator/internal/broker"
	"github.com/Guizzs26/go-saga-orchestrator/internal/config"
	"github.com/Guizzs26/go-saga-orchestrator/internal/models"
	"github.com/Guizzs26/go-saga-orchestrator/pkg/infra"
	"github.com/spf13/cobra"
)

var (
	rabbitURL string
	opts      eventOptions
)

var rootCmd = &cobra.Command{
	Use:   "saga-emit",
	Short: "Publish saga events onto the broker for manual testing",
	Long: `Publishes one inbound saga event to the saga.topic exchange and waits for
the broker confirm.

Examples:
  saga-emit order-created --order-id 42 --amount 100 --item p1:2
  saga-emit payment-processed --correlation-id <uuid> --order-id 42 --success
  saga-emit inventory-updated --correlation-id <uuid> --order-id 42 --success=false`,
	SilenceUsage: true,
}

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	rootCmd.PersistentFlags().StringVar(&rabbitURL, "rabbitmq-url", cfg.RabbitMQURL, "AMQP URL of the broker")
	rootCmd.PersistentFlags().StringVar(&opts.correlationID, "correlation-id", "", "saga correlation id (generated when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.orderID, "order-id", "", "order id")
	rootCmd.PersistentFlags().BoolVar(&opts.success, "success", true, "outcome reported by the participant")

	for _, kind := range models.EventKinds {
		rootCmd.AddCommand(newEventCmd(kind, logger))
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newEventCmd(kind models.MessageKind, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   commandName(kind),
		Short: fmt.Sprintf("Publish a %s event", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			evt, err := buildEvent(kind, opts)
			if err != nil {
				return err
			}
			return publish(cmd.Context(), evt, logger)
		},
	}

	if kind == models.KindOrderCreated {
		cmd.Flags().StringVar(&opts.amount, "amount", "0", "order total, e.g. 149.90")
		cmd.Flags().StringArrayVar(&opts.items, "item", nil, "order line as sku:qty, repeatable")
	}
	return cmd
}

func publish(ctx context.Context, evt models.Event, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := broker.NewRabbitMQClient(rabbitURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Publish(ctx, evt); err != nil {
		return err
	}

	logger.Info("Event confirmed by broker", "event", evt.Kind(), "correlation_id", evt.SagaID())
	fmt.Println(evt.SagaID())
	return nil
}
