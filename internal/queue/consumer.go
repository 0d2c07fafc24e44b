package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/omnidesk/omnidesk/internal/config"
)

// Consumer reads from the ingestion topic with manual offset commits.
// Offsets are committed only after a message has been fully handled, so
// delivery is at least once.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewConsumer(log *slog.Logger, cfg config.KafkaConfig) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.IncomingTopic,
			GroupID: cfg.ConsumerGroup,
		}),
		logger: log.With(slog.String("component", "queue")),
	}
}

// Fetch blocks until the next message is available or ctx is done. The
// returned message must be passed to Commit once handled.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("fetch message: %w", err)
	}
	return msg, nil
}

// Commit acknowledges a fetched message.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}

// Close shuts the reader down and leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
