package metrics

import (
	"context"
	"log/slog"

	"github.com/omnidesk/omnidesk/internal/store"
)

// Metric types emitted by the pipeline and the collector.
const (
	TypeSentiment         = "sentiment"
	TypeResponseLatency   = "response_latency"
	TypeConversationCount = "conversation_count"
	TypeMessageVolume     = "message_volume"
	TypeEscalation        = "escalation"
	TypeAlert             = "alert"
	TypeDailyDigest       = "daily_digest"
	TypeKBCandidates      = "kb_candidates"
)

// MetricStore is the subset of metric persistence the recorder needs.
type MetricStore interface {
	Record(ctx context.Context, metricType string, value float64, channel string, metadata map[string]any) error
	ChannelMetrics(ctx context.Context, periodHours int) ([]store.ChannelMetrics, error)
}

// Recorder writes metric data points best effort. A metrics write never
// fails the operation that produced it; failures are logged and dropped.
type Recorder struct {
	metrics MetricStore
	logger  *slog.Logger
}

func NewRecorder(log *slog.Logger, metrics MetricStore) *Recorder {
	return &Recorder{
		metrics: metrics,
		logger:  log.With(slog.String("component", "metrics")),
	}
}

func (r *Recorder) Record(ctx context.Context, metricType string, value float64, channel string, metadata map[string]any) {
	if err := r.metrics.Record(ctx, metricType, value, channel, metadata); err != nil {
		r.logger.Warn("metric write dropped",
			slog.String("metric_type", metricType),
			slog.String("error", err.Error()),
		)
	}
}
