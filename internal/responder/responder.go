package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/omnidesk/omnidesk/internal/config"
)

// Request carries the inbound message plus resolved context to the response
// service.
type Request struct {
	CustomerID     string  `json:"customer_id"`
	ConversationID string  `json:"conversation_id"`
	Channel        string  `json:"channel"`
	Message        string  `json:"message"`
	CustomerName   string  `json:"customer_name,omitempty"`
	SentimentScore float64 `json:"sentiment_score"`
}

// Result is the response service's verdict for one message.
type Result struct {
	Status       string `json:"status"`
	Response     string `json:"response"`
	TicketNumber string `json:"ticket_number,omitempty"`
	Escalated    bool   `json:"escalated"`
	Reason       string `json:"reason,omitempty"`
}

// Responder produces a reply for an inbound customer message.
type Responder interface {
	Respond(ctx context.Context, req Request) (Result, error)
}

// Client calls an external HTTP response service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(log *slog.Logger, cfg config.ResponderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  log.With(slog.String("component", "responder")),
	}
}

func (c *Client) Respond(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal responder request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/respond", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build responder request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("call responder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("responder returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode responder result: %w", err)
	}
	return result, nil
}
