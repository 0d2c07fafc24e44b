package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MetricStore persists the append-only metric time series.
type MetricStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewMetricStore(log *slog.Logger, pool *pgxpool.Pool) *MetricStore {
	return &MetricStore{
		pool:   pool,
		logger: log.With(slog.String("store", "metrics")),
	}
}

// Record appends one metric data point. Channel may be empty for
// channel-independent metrics.
func (s *MetricStore) Record(ctx context.Context, metricType string, value float64, channel string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metric metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_metrics (metric_type, value, channel, metadata)
		 VALUES ($1, $2, NULLIF($3, ''), $4::jsonb)`,
		metricType, value, channel, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("record metric: %w", err)
	}
	return nil
}

// ChannelMetrics aggregates per-channel rollups over the trailing window.
func (s *MetricStore) ChannelMetrics(ctx context.Context, periodHours int) ([]ChannelMetrics, error) {
	if periodHours <= 0 {
		periodHours = 24
	}
	rows, err := s.pool.Query(ctx,
		`SELECT
		     channel,
		     COUNT(*) FILTER (WHERE metric_type = 'conversation_count') AS total_conversations,
		     COALESCE(AVG(value) FILTER (WHERE metric_type = 'sentiment'), 0.5) AS avg_sentiment,
		     COUNT(*) FILTER (WHERE metric_type = 'escalation') AS escalation_count,
		     COALESCE(AVG(value) FILTER (WHERE metric_type = 'response_latency'), 0) AS avg_latency_ms,
		     COUNT(*) FILTER (WHERE metric_type = 'message_volume') AS message_volume
		 FROM agent_metrics
		 WHERE recorded_at >= NOW() - ($1 || ' hours')::INTERVAL
		   AND channel IS NOT NULL
		 GROUP BY channel`,
		fmt.Sprint(periodHours),
	)
	if err != nil {
		return nil, fmt.Errorf("channel metrics: %w", err)
	}
	defer rows.Close()

	var items []ChannelMetrics
	for rows.Next() {
		var m ChannelMetrics
		if err := rows.Scan(&m.Channel, &m.TotalConversations, &m.AvgSentiment, &m.EscalationCount, &m.AvgLatencyMs, &m.MessageVolume); err != nil {
			return nil, fmt.Errorf("scan channel metrics: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ByType returns recent metrics of one type, newest first.
func (s *MetricStore) ByType(ctx context.Context, metricType string, limit int) ([]MetricPoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, metric_type, value, COALESCE(channel, ''), metadata, recorded_at
		 FROM agent_metrics
		 WHERE metric_type = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`,
		metricType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics by type: %w", err)
	}
	defer rows.Close()

	var items []MetricPoint
	for rows.Next() {
		var p MetricPoint
		var metaJSON []byte
		if err := rows.Scan(&p.ID, &p.MetricType, &p.Value, &p.Channel, &metaJSON, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &p.Metadata); err != nil {
				return nil, fmt.Errorf("decode metric metadata: %w", err)
			}
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
