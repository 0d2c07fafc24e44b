package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/config"
)

// ComponentHealth is one component's health entry.
type ComponentHealth struct {
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// HealthHandler reports component health: database connectivity plus
// channel credential configuration.
type HealthHandler struct {
	pool   *pgxpool.Pool
	gmail  config.GmailConfig
	twilio config.TwilioConfig
	logger *slog.Logger
}

func NewHealthHandler(log *slog.Logger, pool *pgxpool.Pool, gmail config.GmailConfig, twilio config.TwilioConfig) *HealthHandler {
	return &HealthHandler{
		pool:   pool,
		gmail:  gmail,
		twilio: twilio,
		logger: log.With(slog.String("handler", "health")),
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
	e.GET("/api/v1/health", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	components := map[string]ComponentHealth{
		"database": h.checkDatabase(c),
		"gmail":    checkConfigured(h.gmail.ClientID != "", "gmail credentials not configured"),
		"whatsapp": checkConfigured(h.twilio.AccountSID != "" && h.twilio.AuthToken != "", "twilio credentials not configured"),
	}

	overall := "healthy"
	for _, comp := range components {
		switch comp.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}

func (h *HealthHandler) HealthHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *HealthHandler) checkDatabase(c echo.Context) ComponentHealth {
	start := time.Now()
	if err := h.pool.Ping(c.Request().Context()); err != nil {
		return ComponentHealth{Status: "unhealthy", Error: err.Error()}
	}
	return ComponentHealth{Status: "healthy", LatencyMs: float64(time.Since(start).Microseconds()) / 1000}
}

func checkConfigured(ok bool, reason string) ComponentHealth {
	if ok {
		return ComponentHealth{Status: "healthy"}
	}
	return ComponentHealth{Status: "degraded", Error: reason}
}
