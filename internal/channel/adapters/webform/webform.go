package webform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// Adapter handles web support form submissions. Responses are stored in the
// database and retrieved through the ticket API; there is no push delivery.
type Adapter struct {
	logger *slog.Logger
}

func New(log *slog.Logger) *Adapter {
	return &Adapter{logger: log.With(slog.String("adapter", "webform"))}
}

func (a *Adapter) Type() channel.ChannelType { return channel.TypeWebForm }

// Normalize parses a web form submission. The form requires an email and a
// message body; name, category and priority travel as metadata.
func (a *Adapter) Normalize(raw map[string]any) (channel.InboundMessage, error) {
	email := stringField(raw, "email")
	if email == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: missing email field", channel.ErrInvalidPayload)
	}
	message := stringField(raw, "message")
	if message == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: missing message field", channel.ErrInvalidPayload)
	}

	priority := stringField(raw, "priority")
	if priority == "" {
		priority = "medium"
	}

	return channel.InboundMessage{
		CustomerIdentifier: email,
		IdentifierType:     channel.IdentifierEmail,
		Channel:            channel.TypeWebForm,
		Content:            message,
		Subject:            stringField(raw, "subject"),
		Metadata: map[string]any{
			"name":     stringField(raw, "name"),
			"category": stringField(raw, "category"),
			"priority": priority,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// FormatResponse renders a semi-formal reply with a ticket tracking line,
// capped at 300 words.
func (a *Adapter) FormatResponse(response string, meta channel.ResponseMeta) string {
	name := meta.CustomerName
	if name == "" {
		name = "there"
	}

	ticketRef := ""
	if meta.TicketNumber != "" {
		ticketRef = fmt.Sprintf("\n\nYour ticket reference: %s\nTrack your ticket at support.techcorp.io", meta.TicketNumber)
	}

	formatted := fmt.Sprintf("Hi %s,\n\n%s%s", name, response, ticketRef)

	words := strings.Fields(formatted)
	if len(words) > 300 {
		formatted = strings.Join(words[:297], " ") + "..." + ticketRef
	}
	return formatted
}

// Deliver is a no-op for web form: the stored outbound message is retrieved
// via the ticket API.
func (a *Adapter) Deliver(ctx context.Context, formatted, destination string, meta map[string]any) (bool, error) {
	a.logger.Debug("web form response stored for retrieval", slog.String("destination", destination))
	return true, nil
}

func stringField(raw map[string]any, key string) string {
	value, _ := raw[key].(string)
	return strings.TrimSpace(value)
}
