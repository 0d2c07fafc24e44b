package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/store"
)

// Alert thresholds.
const (
	alertAvgLatencyMs   = 3000.0
	alertEscalationRate = 0.25
)

// Alert is one threshold violation found during a collection tick.
type Alert struct {
	Type      string  `json:"type"`
	Channel   string  `json:"channel"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// Candidate marks a channel whose recent conversations look suitable for
// knowledge base expansion.
type Candidate struct {
	Channel       string  `json:"channel"`
	ResolvedRatio float64 `json:"resolved_ratio"`
	AvgSentiment  float64 `json:"avg_sentiment"`
	Conversations int64   `json:"conversations"`
}

// Collector aggregates channel metrics on a fixed interval, raises threshold
// alerts, and produces a daily digest plus a knowledge base candidate scan.
type Collector struct {
	metrics  MetricStore
	recorder *Recorder
	logger   *slog.Logger

	interval    time.Duration
	periodHours int
}

func NewCollector(log *slog.Logger, metrics MetricStore, recorder *Recorder, cfg config.MetricsConfig) *Collector {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	periodHours := cfg.PeriodHours
	if periodHours <= 0 {
		periodHours = 24
	}
	return &Collector{
		metrics:     metrics,
		recorder:    recorder,
		logger:      log.With(slog.String("component", "metrics_collector")),
		interval:    interval,
		periodHours: periodHours,
	}
}

// Run loops until ctx is cancelled. A failed tick is logged and the loop
// continues.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info("metrics collector started", slog.Duration("interval", c.interval))

	// Roughly once per 24h of elapsed ticks.
	digestEvery := 86400 / int(c.interval.Seconds())
	if digestEvery < 1 {
		digestEvery = 1
	}
	digestCounter := 0

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("metrics collector stopped")
			return
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.logger.Error("metrics collection failed", slog.String("error", err.Error()))
				continue
			}
			digestCounter++
			if digestCounter >= digestEvery {
				digestCounter = 0
				if err := c.Digest(ctx); err != nil {
					c.logger.Error("daily digest failed", slog.String("error", err.Error()))
				}
				if err := c.ScanKnowledgeCandidates(ctx); err != nil {
					c.logger.Error("knowledge candidate scan failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Tick pulls the trailing-window channel rollups and records an alert metric
// for every threshold violation.
func (c *Collector) Tick(ctx context.Context) error {
	channels, err := c.metrics.ChannelMetrics(ctx, c.periodHours)
	if err != nil {
		return fmt.Errorf("channel metrics: %w", err)
	}

	alerts := CheckAlerts(channels)
	for _, alert := range alerts {
		c.recorder.Record(ctx, TypeAlert, 1.0, alert.Channel, map[string]any{
			"alert_type": alert.Type,
			"message":    alert.Message,
		})
		c.logger.Warn("alert threshold exceeded",
			slog.String("alert_type", alert.Type),
			slog.String("channel", alert.Channel),
			slog.Float64("value", alert.Value),
		)
	}

	c.logger.Info("metrics check",
		slog.Int("channels", len(channels)),
		slog.Int("alerts", len(alerts)),
	)
	return nil
}

// CheckAlerts evaluates the alert thresholds against per-channel rollups.
func CheckAlerts(channels []store.ChannelMetrics) []Alert {
	var alerts []Alert
	for _, ch := range channels {
		if ch.AvgLatencyMs > alertAvgLatencyMs {
			alerts = append(alerts, Alert{
				Type:      "high_latency",
				Channel:   ch.Channel,
				Value:     ch.AvgLatencyMs,
				Threshold: alertAvgLatencyMs,
				Message: fmt.Sprintf("channel %s avg latency %.0fms exceeds %.0fms",
					ch.Channel, ch.AvgLatencyMs, alertAvgLatencyMs),
			})
		}
		if ch.TotalConversations > 0 {
			rate := float64(ch.EscalationCount) / float64(ch.TotalConversations)
			if rate > alertEscalationRate {
				alerts = append(alerts, Alert{
					Type:      "high_escalation_rate",
					Channel:   ch.Channel,
					Value:     rate,
					Threshold: alertEscalationRate,
					Message: fmt.Sprintf("channel %s escalation rate %.1f%% exceeds %.0f%%",
						ch.Channel, rate*100, alertEscalationRate*100),
				})
			}
		}
	}
	return alerts
}

// Digest computes cross-channel totals over the trailing window and stores
// the summary as a single daily_digest metric.
func (c *Collector) Digest(ctx context.Context) error {
	channels, err := c.metrics.ChannelMetrics(ctx, c.periodHours)
	if err != nil {
		return fmt.Errorf("channel metrics: %w", err)
	}

	var (
		totalConversations int64
		totalEscalations   int64
		totalMessages      int64
		latencySum         float64
		sentimentSum       float64
	)
	channelSummaries := make([]map[string]any, 0, len(channels))
	for _, ch := range channels {
		totalConversations += ch.TotalConversations
		totalEscalations += ch.EscalationCount
		totalMessages += ch.MessageVolume
		latencySum += ch.AvgLatencyMs * float64(ch.TotalConversations)
		sentimentSum += ch.AvgSentiment * float64(ch.TotalConversations)

		escalationRate := 0.0
		if ch.TotalConversations > 0 {
			escalationRate = round3(float64(ch.EscalationCount) / float64(ch.TotalConversations))
		}
		channelSummaries = append(channelSummaries, map[string]any{
			"channel":         ch.Channel,
			"conversations":   ch.TotalConversations,
			"escalations":     ch.EscalationCount,
			"escalation_rate": escalationRate,
			"avg_latency_ms":  round1(ch.AvgLatencyMs),
			"avg_sentiment":   round3(ch.AvgSentiment),
			"message_volume":  ch.MessageVolume,
		})
	}

	avgSentiment := 0.5
	avgLatency := 0.0
	escalationRate := 0.0
	if totalConversations > 0 {
		avgSentiment = sentimentSum / float64(totalConversations)
		avgLatency = latencySum / float64(totalConversations)
		escalationRate = float64(totalEscalations) / float64(totalConversations)
	}

	c.recorder.Record(ctx, TypeDailyDigest, 1.0, "", map[string]any{
		"period_hours": c.periodHours,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"totals": map[string]any{
			"total_conversations":     totalConversations,
			"total_messages":          totalMessages,
			"total_escalations":       totalEscalations,
			"escalation_rate":         round3(escalationRate),
			"avg_sentiment":           round3(avgSentiment),
			"avg_response_latency_ms": round1(avgLatency),
		},
		"channels": channelSummaries,
	})

	c.logger.Info("daily digest",
		slog.Int64("conversations", totalConversations),
		slog.Float64("avg_sentiment", round3(avgSentiment)),
		slog.Float64("escalation_rate", round3(escalationRate)),
	)
	return nil
}

// ScanKnowledgeCandidates finds channels with positive sentiment and a high
// resolved ratio and records them for knowledge base review.
func (c *Collector) ScanKnowledgeCandidates(ctx context.Context) error {
	channels, err := c.metrics.ChannelMetrics(ctx, c.periodHours)
	if err != nil {
		return fmt.Errorf("channel metrics: %w", err)
	}

	candidates := KnowledgeCandidates(channels)
	if len(candidates) == 0 {
		return nil
	}

	payload := make([]map[string]any, 0, len(candidates))
	for _, cand := range candidates {
		payload = append(payload, map[string]any{
			"channel":        cand.Channel,
			"resolved_ratio": cand.ResolvedRatio,
			"avg_sentiment":  cand.AvgSentiment,
			"conversations":  cand.Conversations,
		})
	}
	c.recorder.Record(ctx, TypeKBCandidates, float64(len(candidates)), "", map[string]any{
		"candidates": payload,
	})
	c.logger.Info("knowledge base candidates found", slog.Int("count", len(candidates)))
	return nil
}

// KnowledgeCandidates filters channel rollups to those worth mining for
// knowledge base articles: positive sentiment and most conversations handled
// without escalation.
func KnowledgeCandidates(channels []store.ChannelMetrics) []Candidate {
	var candidates []Candidate
	for _, ch := range channels {
		if ch.TotalConversations == 0 || ch.AvgSentiment <= 0.5 {
			continue
		}
		resolvedRatio := 1.0 - float64(ch.EscalationCount)/float64(ch.TotalConversations)
		if resolvedRatio > 0.7 {
			candidates = append(candidates, Candidate{
				Channel:       ch.Channel,
				ResolvedRatio: round3(resolvedRatio),
				AvgSentiment:  round3(ch.AvgSentiment),
				Conversations: ch.TotalConversations,
			})
		}
	}
	return candidates
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
