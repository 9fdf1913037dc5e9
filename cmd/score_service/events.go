package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"score_service/internal/config"
	sl "score_service/internal/lib/logger/sl"
	"score_service/internal/models"
	"score_service/internal/rabbitmq"

	"github.com/spf13/cobra"
)

// NewEventsCmd creates the events subcommand, which tails the score event
// queue into the log.
func NewEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Consume score events from RabbitMQ and log them",
		RunE:  runEvents,
	}
}

func runEvents(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	if cfg.RabbitMQ.URL == "" {
		return errors.New("rabbitmq.url is required to consume score events")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := setupLogger(cfg.Env)

	log.Info("starting score event consumer", slog.String("queue", cfg.RabbitMQ.QueueName))

	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to init rabbitmq", sl.Err(err))
		return err
	}
	defer r.Close()

	err = r.Consume(ctx, func(ev models.ScoreEvent) {
		log.Info("score event",
			slog.Int64("uid", ev.UserID),
			slog.String("username", ev.Username),
			slog.Int64("delta", ev.Delta),
			slog.Int64("score", ev.NewScore),
			slog.Time("occurred_at", ev.OccurredAt),
		)
	})
	if err != nil {
		log.Error("consumer stopped", sl.Err(err))
		return err
	}

	log.Info("consumer gracefully stopped")

	return nil
}
