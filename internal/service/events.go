package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/task-manager/internal/queue"
)

// EventPublisher delivers domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// NoopPublisher drops every event. It is used when RABBITMQ_URL is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, queue.Event) error { return nil }

// emit publishes ev without letting a broker failure reach the caller.
func emit(ctx context.Context, pub EventPublisher, log *slog.Logger, ev queue.Event) {
	if pub == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, ev); err != nil {
		eventsFailed.WithLabelValues(ev.Type).Inc()
		log.Warn("publish event failed", slog.String("event", ev.Type), slog.Any("error", err))
	}
}
