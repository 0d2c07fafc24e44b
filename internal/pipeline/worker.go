package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// apologyText is delivered best effort when a message fails processing
// entirely.
const apologyText = "We're experiencing high demand right now and weren't able to fully process " +
	"your request. A member of our team will follow up with you shortly. " +
	"We apologize for the inconvenience."

// Consumer is the queue side the worker reads from.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// DeadLetterPublisher quarantines failed messages.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, original []byte, cause error) error
}

// Worker drives the consume loop: fetch, process, commit. Failed messages
// get a best-effort apology and a dead letter entry before their offset is
// committed, so one poison message never blocks the partition.
type Worker struct {
	consumer  Consumer
	producer  DeadLetterPublisher
	processor *Processor
	registry  *channel.Registry
	logger    *slog.Logger
}

func NewWorker(log *slog.Logger, consumer Consumer, producer DeadLetterPublisher, processor *Processor, registry *channel.Registry) *Worker {
	return &Worker{
		consumer:  consumer,
		producer:  producer,
		processor: processor,
		registry:  registry,
		logger:    log.With(slog.String("component", "worker")),
	}
}

// Run consumes until ctx is cancelled. No per-message failure aborts the
// loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		msg, err := w.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				w.logger.Info("worker stopped")
				return
			}
			w.logger.Error("fetch failed", slog.String("error", err.Error()))
			continue
		}
		w.Handle(ctx, msg)
	}
}

// Handle processes one fetched message and always commits its offset.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) {
	result := w.processor.Process(ctx, msg.Value)

	if result.Status == StatusFailed {
		w.logger.Error("message processing failed",
			slog.String("channel", result.Channel.String()),
			slog.String("error", errText(result.Err)),
		)
		// A payload that never deserialized has no channel or identifier
		// to apologize to.
		if result.Deserialized {
			w.sendApology(ctx, msg.Value)
		}
		if err := w.producer.PublishDeadLetter(ctx, msg.Value, result.Err); err != nil {
			w.logger.Error("dead letter publish failed", slog.String("error", err.Error()))
		}
	}

	if err := w.consumer.Commit(ctx, msg); err != nil {
		w.logger.Error("offset commit failed", slog.String("error", err.Error()))
	}
}

// sendApology makes a best-effort delivery of a generic apology to the
// original sender. Its own failure is swallowed.
func (w *Worker) sendApology(ctx context.Context, raw []byte) {
	var msg channel.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	adapter, ok := w.registry.Get(msg.Channel)
	if !ok {
		return
	}
	formatted := adapter.FormatResponse(apologyText, channel.ResponseMeta{})
	if _, err := adapter.Deliver(ctx, formatted, msg.CustomerIdentifier, msg.Metadata); err != nil {
		w.logger.Error("apology delivery failed",
			slog.String("channel", msg.Channel.String()),
			slog.String("error", err.Error()),
		)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
