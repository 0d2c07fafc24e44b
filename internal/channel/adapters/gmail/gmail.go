package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mg "github.com/mailgun/mailgun-go/v5"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
)

const signature = "\n\nBest regards,\nTechCorp Support Team\nsupport@techcorp.io | status.techcorp.io"

// Adapter handles the email channel. Inbound traffic arrives either as a
// fully parsed email (worker has already fetched the body) or as a raw Gmail
// Pub/Sub notification stub whose content must be fetched out of band.
type Adapter struct {
	cfg     config.GmailConfig
	mailgun config.MailgunConfig
	client  *mg.Client
	logger  *slog.Logger
}

func New(log *slog.Logger, cfg config.GmailConfig, mgCfg config.MailgunConfig) *Adapter {
	a := &Adapter{
		cfg:     cfg,
		mailgun: mgCfg,
		logger:  log.With(slog.String("adapter", "gmail")),
	}
	if mgCfg.APIKey != "" {
		a.client = mg.NewMailgun(mgCfg.APIKey)
	}
	return a
}

func (a *Adapter) Type() channel.ChannelType { return channel.TypeEmail }

// Normalize parses either a pre-parsed email payload or a Pub/Sub push
// notification. Notification stubs carry a needs_fetch metadata flag and a
// placeholder body until the Gmail API fetch completes.
func (a *Adapter) Normalize(raw map[string]any) (channel.InboundMessage, error) {
	if from, ok := raw["from"].(string); ok && strings.TrimSpace(from) != "" {
		return channel.InboundMessage{
			CustomerIdentifier: strings.TrimSpace(from),
			IdentifierType:     channel.IdentifierEmail,
			Channel:            channel.TypeEmail,
			Content:            stringField(raw, "body"),
			Subject:            stringField(raw, "subject"),
			Metadata: map[string]any{
				"thread_id":        stringField(raw, "thread_id"),
				"message_id":       stringField(raw, "message_id"),
				"gmail_history_id": stringField(raw, "history_id"),
			},
			Timestamp: time.Now().UTC(),
		}, nil
	}

	msg, _ := raw["message"].(map[string]any)
	data, _ := msg["data"].(string)
	if data == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: gmail notification has no data", channel.ErrInvalidPayload)
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return channel.InboundMessage{}, fmt.Errorf("%w: decode notification data: %v", channel.ErrInvalidPayload, err)
	}

	var notification struct {
		EmailAddress string          `json:"emailAddress"`
		HistoryID    json.RawMessage `json:"historyId"`
	}
	if err := json.Unmarshal(decoded, &notification); err != nil {
		return channel.InboundMessage{}, fmt.Errorf("%w: parse notification data: %v", channel.ErrInvalidPayload, err)
	}
	if notification.EmailAddress == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: gmail notification has no emailAddress", channel.ErrInvalidPayload)
	}

	return channel.InboundMessage{
		CustomerIdentifier: notification.EmailAddress,
		IdentifierType:     channel.IdentifierEmail,
		Channel:            channel.TypeEmail,
		Content:            "[Pending Gmail API fetch]",
		Metadata: map[string]any{
			"gmail_history_id":   strings.Trim(string(notification.HistoryID), `"`),
			"pub_sub_message_id": stringField(msg, "messageId"),
			"needs_fetch":        true,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// FormatResponse renders a formal email with greeting, ticket reference and
// signature, capped at 500 words.
func (a *Adapter) FormatResponse(response string, meta channel.ResponseMeta) string {
	name := meta.CustomerName
	if name == "" {
		name = "there"
	}

	ticketRef := ""
	if meta.TicketNumber != "" {
		ticketRef = fmt.Sprintf("\n\nYour ticket reference: %s", meta.TicketNumber)
	}

	formatted := fmt.Sprintf("Hi %s,\n\n%s%s%s", name, response, ticketRef, signature)

	words := strings.Fields(formatted)
	if len(words) > 500 {
		formatted = strings.Join(words[:497], " ") + "..." + signature
	}
	return formatted
}

// Deliver sends the reply email. Mailgun is the transport when configured;
// without credentials the send is skipped so the pipeline can run against
// test environments.
func (a *Adapter) Deliver(ctx context.Context, formatted, destination string, meta map[string]any) (bool, error) {
	if a.client == nil || a.mailgun.Domain == "" {
		a.logger.Warn("email transport not configured, skipping delivery", slog.String("destination", destination))
		return false, nil
	}

	subject, _ := meta["subject"].(string)
	if subject == "" {
		subject = "Support Request"
	}
	if !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}

	from := a.mailgun.Sender
	if from == "" {
		from = fmt.Sprintf("support@%s", a.mailgun.Domain)
	}

	m := mg.NewMessage(a.mailgun.Domain, from, subject, formatted, destination)
	resp, err := a.client.Send(ctx, m)
	if err != nil {
		return false, fmt.Errorf("email send: %w", err)
	}

	a.logger.Info("email reply sent",
		slog.String("destination", destination),
		slog.String("message_id", resp.ID),
	)
	return true, nil
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", v))
	default:
		return ""
	}
}
