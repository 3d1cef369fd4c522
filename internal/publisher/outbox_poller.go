package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

const batchSize = 100

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes draft order events written by the repository to
// Kafka and marks them processed. Delivery is at least once.
type OutboxPoller struct {
	repo     repository.OutboxRepository
	writer   MessageWriter
	interval time.Duration
	log      *slog.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo repository.OutboxRepository, writer MessageWriter, interval time.Duration, log *slog.Logger) *OutboxPoller {
	return &OutboxPoller{repo: repo, writer: writer, interval: interval, log: log}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

// processUnpublishedEvents returns the number of events published.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch outbox events", "err", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			// later events of the same transaction must not overtake this one
			p.log.ErrorContext(ctx, "failed to publish outbox event", "event_id", event.ID, "err", err)
			return published
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.ErrorContext(ctx, "failed to mark outbox event processed", "event_id", event.ID, "err", err)
			return published
		}
		published++
	}
	if published > 0 {
		p.log.DebugContext(ctx, "outbox events published", "count", published)
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
