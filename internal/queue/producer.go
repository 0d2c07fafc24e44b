package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/omnidesk/omnidesk/internal/config"
)

// DeadLetter is the payload published for a message that exhausted its
// processing attempt. The original message is preserved verbatim so it can
// be replayed once the underlying fault is fixed.
type DeadLetter struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	Error           string          `json:"error"`
	Timestamp       string          `json:"timestamp"`
}

// Producer publishes normalized messages to the ingestion topic and failed
// messages to the dead letter topic.
type Producer struct {
	incoming   *kafka.Writer
	deadLetter *kafka.Writer
	logger     *slog.Logger
}

func NewProducer(log *slog.Logger, cfg config.KafkaConfig) *Producer {
	return &Producer{
		incoming: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.IncomingTopic,
			Balancer: &kafka.LeastBytes{},
		},
		deadLetter: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.DeadLetterTopic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: log.With(slog.String("component", "queue")),
	}
}

// Publish serializes v as JSON and writes it to the ingestion topic. The key
// keeps messages from the same customer on the same partition so per-customer
// ordering holds.
func (p *Producer) Publish(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	eventID := uuid.NewString()
	if err := p.incoming.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: []kafka.Header{{Key: "event_id", Value: []byte(eventID)}},
	}); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	p.logger.Debug("message published",
		slog.String("key", key),
		slog.String("event_id", eventID),
	)
	return nil
}

// PublishDeadLetter wraps the original payload with the failure cause and
// writes it to the dead letter topic.
func (p *Producer) PublishDeadLetter(ctx context.Context, original []byte, cause error) error {
	// A malformed original cannot be embedded raw; quote it instead so the
	// dead letter itself is still valid JSON.
	raw := json.RawMessage(original)
	if !json.Valid(original) {
		raw, _ = json.Marshal(string(original))
	}
	payload, err := json.Marshal(DeadLetter{
		OriginalMessage: raw,
		Error:           cause.Error(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := p.deadLetter.WriteMessages(ctx, kafka.Message{Value: payload}); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	p.logger.Warn("message dead lettered", slog.String("error", cause.Error()))
	return nil
}

// Close flushes and closes both writers.
func (p *Producer) Close() error {
	if err := p.incoming.Close(); err != nil {
		return err
	}
	return p.deadLetter.Close()
}
