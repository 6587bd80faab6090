package kafka

import (
	"github.com/segmentio/kafka-go"

	"github.com/dispatchlab/notification-service/internal/domain"
)

// GroupID returns the consumer group name for a channel. All workers for a
// channel share one group, so Kafka spreads the topic's partitions across
// them.
func GroupID(channel domain.Channel) string {
	return "notifier-" + string(channel)
}

// NewReader builds a manual-commit reader for a channel's topic.
// CommitInterval zero disables auto-commit: offsets advance only through an
// explicit CommitMessages after the attempt's terminal state is persisted.
func NewReader(brokers []string, channel domain.Channel) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        GroupID(channel),
		Topic:          channel.Topic(),
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}
