package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/dispatchlab/notification-service/internal/domain"
)

// Publisher implements domain.Publisher on top of Kafka, one writer per
// channel topic. Messages carry only the notification id; workers reload the
// row before acting, so a republished message never resends stale content.
type Publisher struct {
	writers map[domain.Channel]*kafka.Writer
	logger  *slog.Logger
}

// NewPublisher creates a writer for each channel topic
func NewPublisher(brokers []string, logger *slog.Logger) *Publisher {
	writers := make(map[domain.Channel]*kafka.Writer, len(domain.Channels))
	for _, ch := range domain.Channels {
		writers[ch] = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        ch.Topic(),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return &Publisher{writers: writers, logger: logger}
}

// Publish appends the notification id to the channel's topic. The id is the
// message key, so every publish of the same notification hashes to the same
// partition and per-notification ordering holds.
func (p *Publisher) Publish(ctx context.Context, channel domain.Channel, id uuid.UUID) error {
	w, ok := p.writers[channel]
	if !ok {
		return fmt.Errorf("no writer for channel %q", channel)
	}

	msg := kafka.Message{
		Key:   []byte(id.String()),
		Value: []byte(id.String()),
		Time:  time.Now().UTC(),
	}

	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", w.Topic, err)
	}

	p.logger.Debug("published notification", "notification_id", id, "topic", w.Topic)
	return nil
}

// Close flushes and closes all writers
func (p *Publisher) Close() error {
	var firstErr error
	for ch, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for %s: %w", ch, err)
		}
	}
	return firstErr
}

var _ domain.Publisher = (*Publisher)(nil)
