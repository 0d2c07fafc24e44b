package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/whatsapp"
	"github.com/omnidesk/omnidesk/internal/config"
)

const twiMLEmpty = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// WhatsAppWebhookHandler receives Twilio WhatsApp webhooks. Twilio expects a
// TwiML acknowledgement even when processing fails, so only a bad signature
// is rejected.
type WhatsAppWebhookHandler struct {
	registry  *channel.Registry
	publisher Publisher
	authToken string
	logger    *slog.Logger
}

func NewWhatsAppWebhookHandler(log *slog.Logger, registry *channel.Registry, publisher Publisher, cfg config.TwilioConfig) *WhatsAppWebhookHandler {
	return &WhatsAppWebhookHandler{
		registry:  registry,
		publisher: publisher,
		authToken: cfg.AuthToken,
		logger:    log.With(slog.String("handler", "whatsapp_webhook")),
	}
}

func (h *WhatsAppWebhookHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/webhooks/whatsapp", h.Handle)
}

func (h *WhatsAppWebhookHandler) Handle(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form payload")
	}
	params := make(map[string]string, len(form))
	raw := make(map[string]any, len(form))
	for key := range form {
		params[key] = form.Get(key)
		raw[key] = form.Get(key)
	}

	if h.authToken != "" {
		signature := c.Request().Header.Get("X-Twilio-Signature")
		url := c.Scheme() + "://" + c.Request().Host + c.Request().RequestURI
		if !whatsapp.ValidateSignature(url, params, signature, h.authToken) {
			return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
		}
	}

	adapter, ok := h.registry.Get(channel.TypeWhatsApp)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "whatsapp adapter not available")
	}

	inbound, err := adapter.Normalize(raw)
	if err != nil {
		h.logger.Error("whatsapp normalization failed", slog.Any("error", err))
		return c.Blob(http.StatusOK, "application/xml", []byte(twiMLEmpty))
	}

	if err := h.publisher.Publish(c.Request().Context(), inbound.CustomerIdentifier, inbound); err != nil {
		h.logger.Error("whatsapp publish failed", slog.Any("error", err))
	}

	return c.Blob(http.StatusOK, "application/xml", []byte(twiMLEmpty))
}
