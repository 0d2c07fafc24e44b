package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
)

const maxMessageChars = 1600

// Adapter handles WhatsApp messages delivered through Twilio webhooks.
type Adapter struct {
	cfg    config.TwilioConfig
	client *http.Client
	logger *slog.Logger
}

func New(log *slog.Logger, cfg config.TwilioConfig) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: log.With(slog.String("adapter", "whatsapp")),
	}
}

func (a *Adapter) Type() channel.ChannelType { return channel.TypeWhatsApp }

// Normalize parses Twilio webhook form fields. The transport prefix is
// stripped from the sender so the bare phone number becomes the identifier.
func (a *Adapter) Normalize(raw map[string]any) (channel.InboundMessage, error) {
	from := stringField(raw, "From")
	phone := strings.TrimSpace(strings.ReplaceAll(from, "whatsapp:", ""))
	if phone == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: missing From field", channel.ErrInvalidPayload)
	}

	body := stringField(raw, "Body")
	if body == "" {
		body = "[Media message - text only supported]"
	}

	return channel.InboundMessage{
		CustomerIdentifier: phone,
		IdentifierType:     channel.IdentifierPhone,
		Channel:            channel.TypeWhatsApp,
		Content:            body,
		Metadata: map[string]any{
			"message_sid":  stringField(raw, "MessageSid"),
			"account_sid":  stringField(raw, "AccountSid"),
			"profile_name": stringField(raw, "ProfileName"),
			"num_media":    stringField(raw, "NumMedia"),
			"from_raw":     from,
		},
		Timestamp: time.Now().UTC(),
	}, nil
}

// FormatResponse keeps replies conversational. Messages over 1600 characters
// are split at sentence boundaries and joined with a separator the delivery
// layer understands as a multi-message marker.
func (a *Adapter) FormatResponse(response string, meta channel.ResponseMeta) string {
	full := response
	if meta.TicketNumber != "" {
		full = fmt.Sprintf("%s\n\nTicket: %s", response, meta.TicketNumber)
	}
	if len(full) <= maxMessageChars {
		return full
	}
	return splitAtSentences(full, maxMessageChars)
}

// Deliver sends the reply through the Twilio messages API. Without
// credentials the send is skipped.
func (a *Adapter) Deliver(ctx context.Context, formatted, destination string, meta map[string]any) (bool, error) {
	if a.cfg.AccountSID == "" || a.cfg.AuthToken == "" {
		a.logger.Warn("twilio credentials not configured, skipping delivery", slog.String("destination", destination))
		return false, nil
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", a.cfg.AccountSID)
	form := url.Values{}
	form.Set("From", a.cfg.WhatsAppNumber)
	form.Set("To", "whatsapp:"+destination)
	form.Set("Body", formatted)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("twilio send: unexpected status %d", resp.StatusCode)
	}

	a.logger.Info("whatsapp reply sent", slog.String("destination", destination))
	return true, nil
}

// splitAtSentences splits long text at sentence boundaries and joins the
// chunks with the multi-message separator.
func splitAtSentences(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && strings.TrimSpace(current.String()) != "" {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}

	var messages []string
	currentMsg := ""
	for _, sentence := range sentences {
		if len(currentMsg)+len(sentence)+1 <= maxChars {
			currentMsg = strings.TrimSpace(currentMsg + " " + sentence)
			continue
		}
		if currentMsg != "" {
			messages = append(messages, currentMsg)
		}
		if len(sentence) > maxChars {
			sentence = sentence[:maxChars]
		}
		currentMsg = sentence
	}
	if currentMsg != "" {
		messages = append(messages, currentMsg)
	}

	if len(messages) == 0 {
		return text
	}
	return strings.Join(messages, "\n---\n")
}

func stringField(raw map[string]any, key string) string {
	value, _ := raw[key].(string)
	return strings.TrimSpace(value)
}
