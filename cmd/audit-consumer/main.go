// Command audit-consumer reads domain events from RabbitMQ and appends them
// to the audit log file.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/task-manager/internal/config"
	"github.com/iliyamo/task-manager/internal/logger"
	"github.com/iliyamo/task-manager/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New("audit-consumer", cfg.Env, cfg.LogLevel)
	if cfg.RabbitMQURL == "" {
		log.Error("RABBITMQ_URL is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewAuditConsumer(cfg.RabbitMQURL, cfg.EventsQueue, cfg.AuditLog, log)
	log.Info("audit consumer started", slog.String("queue", consumer.Queue), slog.String("file", consumer.LogPath))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("audit consumer stopped", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("audit consumer stopped")
}
