package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/metrics"
	"github.com/omnidesk/omnidesk/internal/store"
)

// ChannelMetricView is one channel's rollup in the metrics response.
type ChannelMetricView struct {
	Channel            string  `json:"channel"`
	TotalConversations int64   `json:"total_conversations"`
	AvgSentiment       float64 `json:"avg_sentiment"`
	EscalationCount    int64   `json:"escalation_count"`
	EscalationRate     float64 `json:"escalation_rate"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	MessageVolume      int64   `json:"message_volume"`
}

// MetricsHandler serves per-channel metric rollups.
type MetricsHandler struct {
	metrics *store.MetricStore
	logger  *slog.Logger
}

func NewMetricsHandler(log *slog.Logger, metrics *store.MetricStore) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		logger:  log.With(slog.String("handler", "metrics")),
	}
}

func (h *MetricsHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/metrics/channels", h.Channels)
	e.GET("/api/v1/metrics/alerts", h.Alerts)
}

func (h *MetricsHandler) Channels(c echo.Context) error {
	periodHours := 24
	if raw := c.QueryParam("period_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 720 {
			return echo.NewHTTPError(http.StatusBadRequest, "period_hours must be between 1 and 720")
		}
		periodHours = parsed
	}

	channels, err := h.metrics.ChannelMetrics(c.Request().Context(), periodHours)
	if err != nil {
		h.logger.Error("channel metrics failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "metrics unavailable")
	}

	views := make([]ChannelMetricView, 0, len(channels))
	var totalConversations, totalEscalations int64
	for _, ch := range channels {
		rate := 0.0
		if ch.TotalConversations > 0 {
			rate = float64(ch.EscalationCount) / float64(ch.TotalConversations)
		}
		totalConversations += ch.TotalConversations
		totalEscalations += ch.EscalationCount
		views = append(views, ChannelMetricView{
			Channel:            ch.Channel,
			TotalConversations: ch.TotalConversations,
			AvgSentiment:       ch.AvgSentiment,
			EscalationCount:    ch.EscalationCount,
			EscalationRate:     rate,
			AvgLatencyMs:       ch.AvgLatencyMs,
			MessageVolume:      ch.MessageVolume,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"period_hours": periodHours,
		"channels":     views,
		"totals": map[string]any{
			"total_conversations": totalConversations,
			"total_escalations":   totalEscalations,
		},
	})
}

// AlertView is one fired alert in the alerts response.
type AlertView struct {
	Channel    string         `json:"channel"`
	Metadata   map[string]any `json:"metadata"`
	RecordedAt time.Time      `json:"recorded_at"`
}

func (h *MetricsHandler) Alerts(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 200")
		}
		limit = parsed
	}

	points, err := h.metrics.ByType(c.Request().Context(), metrics.TypeAlert, limit)
	if err != nil {
		h.logger.Error("alert lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "metrics unavailable")
	}

	views := make([]AlertView, 0, len(points))
	for _, p := range points {
		views = append(views, AlertView{
			Channel:    p.Channel,
			Metadata:   p.Metadata,
			RecordedAt: p.RecordedAt,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{"alerts": views})
}
