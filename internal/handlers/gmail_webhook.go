package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// GmailWebhookHandler receives Gmail Pub/Sub push notifications, normalizes
// them and publishes onto the ingestion topic.
type GmailWebhookHandler struct {
	registry  *channel.Registry
	publisher Publisher
	logger    *slog.Logger
}

func NewGmailWebhookHandler(log *slog.Logger, registry *channel.Registry, publisher Publisher) *GmailWebhookHandler {
	return &GmailWebhookHandler{
		registry:  registry,
		publisher: publisher,
		logger:    log.With(slog.String("handler", "gmail_webhook")),
	}
}

func (h *GmailWebhookHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/webhooks/gmail", h.Handle)
}

func (h *GmailWebhookHandler) Handle(c echo.Context) error {
	// Pub/Sub push authenticates with a bearer token.
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" && !strings.HasPrefix(authHeader, "Bearer ") {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var raw map[string]any
	if err := c.Bind(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	adapter, ok := h.registry.Get(channel.TypeEmail)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "email adapter not available")
	}

	inbound, err := adapter.Normalize(raw)
	if err != nil {
		if errors.Is(err, channel.ErrInvalidPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("gmail normalization failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if err := h.publisher.Publish(c.Request().Context(), inbound.CustomerIdentifier, inbound); err != nil {
		// The webhook is acknowledged anyway so Pub/Sub does not retry
		// forever against a broker outage.
		h.logger.Error("gmail publish failed", slog.Any("error", err))
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}
