package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/guardrail"
	"github.com/omnidesk/omnidesk/internal/metrics"
	"github.com/omnidesk/omnidesk/internal/responder"
	"github.com/omnidesk/omnidesk/internal/sentiment"
	"github.com/omnidesk/omnidesk/internal/store"
	"github.com/omnidesk/omnidesk/internal/ticket"
)

// Statuses returned by Process.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// fallbackResponse is sent when the responder fails. Raw errors are never
// customer visible.
const fallbackResponse = "We're experiencing high demand right now and I wasn't able to fully process " +
	"your request. A member of our team will follow up with you shortly. " +
	"We apologize for the inconvenience."

// IdentityResolver resolves a raw identifier to a durable customer.
type IdentityResolver interface {
	Resolve(ctx context.Context, identifierValue string, identifierType channel.IdentifierType, ch channel.ChannelType) (store.Customer, error)
}

// ConversationResolver attaches messages to conversations.
type ConversationResolver interface {
	Resolve(ctx context.Context, customerID, channel string) (store.Conversation, error)
	Escalate(ctx context.Context, id, reason string) error
}

// TicketService creates and escalates tickets.
type TicketService interface {
	Create(ctx context.Context, in store.NewTicket) (store.Ticket, error)
	MarkEscalated(ctx context.Context, id, reason string) error
}

// MessageStore persists the message audit log.
type MessageStore interface {
	Store(ctx context.Context, in store.NewMessage) (store.Message, error)
}

// Result is the outcome of processing a single queued message.
type Result struct {
	Status         string
	Err            error
	Deserialized   bool
	CustomerID     string
	ConversationID string
	Channel        channel.ChannelType
	Sentiment      float64
	Priority       string
	Escalated      bool
	LatencyMs      float64
}

// Processor runs one queued message through the full pipeline: identity,
// conversation, sentiment, guardrails, response or escalation, delivery,
// metrics. It never panics or propagates errors upward; every outcome is a
// Result the worker loop turns into commit or dead letter.
type Processor struct {
	registry      *channel.Registry
	identity      IdentityResolver
	conversations ConversationResolver
	tickets       TicketService
	messages      MessageStore
	scorer        sentiment.Scorer
	guard         *guardrail.Engine
	responder     responder.Responder
	recorder      *metrics.Recorder
	logger        *slog.Logger

	storeTimeout   time.Duration
	deliverTimeout time.Duration
}

func NewProcessor(
	log *slog.Logger,
	cfg config.PipelineConfig,
	registry *channel.Registry,
	identity IdentityResolver,
	conversations ConversationResolver,
	tickets TicketService,
	messages MessageStore,
	scorer sentiment.Scorer,
	guard *guardrail.Engine,
	resp responder.Responder,
	recorder *metrics.Recorder,
) *Processor {
	storeTimeout := time.Duration(cfg.StoreTimeoutSeconds) * time.Second
	if storeTimeout <= 0 {
		storeTimeout = 10 * time.Second
	}
	deliverTimeout := time.Duration(cfg.DeliverTimeoutSeconds) * time.Second
	if deliverTimeout <= 0 {
		deliverTimeout = 30 * time.Second
	}
	return &Processor{
		registry:       registry,
		identity:       identity,
		conversations:  conversations,
		tickets:        tickets,
		messages:       messages,
		scorer:         scorer,
		guard:          guard,
		responder:      resp,
		recorder:       recorder,
		logger:         log.With(slog.String("component", "pipeline")),
		storeTimeout:   storeTimeout,
		deliverTimeout: deliverTimeout,
	}
}

// Process runs the state machine for one raw queue payload.
func (p *Processor) Process(ctx context.Context, raw []byte) Result {
	started := time.Now()

	var msg channel.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Result{Status: StatusFailed, Err: fmt.Errorf("deserialize message: %w", err)}
	}
	result := Result{Status: StatusFailed, Deserialized: true, Channel: msg.Channel}

	p.logger.Info("processing message",
		slog.String("channel", msg.Channel.String()),
		slog.String("identifier_type", msg.IdentifierType.String()),
	)

	customer, err := p.identity.Resolve(ctx, msg.CustomerIdentifier, msg.IdentifierType, msg.Channel)
	if err != nil {
		result.Err = fmt.Errorf("failed to resolve customer: %w", err)
		return result
	}
	result.CustomerID = customer.ID

	conv, err := p.conversations.Resolve(ctx, customer.ID, msg.Channel.String())
	if err != nil {
		result.Err = err
		return result
	}
	result.ConversationID = conv.ID

	score := p.scorer.Score(msg.Content)
	result.Sentiment = score

	inboundMeta := map[string]any{"sentiment_score": score}
	if msg.Subject != "" {
		inboundMeta["subject"] = msg.Subject
	}
	for k, v := range msg.Metadata {
		inboundMeta[k] = v
	}
	if err := p.storeMessage(ctx, store.NewMessage{
		ConversationID: conv.ID,
		CustomerID:     customer.ID,
		Channel:        msg.Channel.String(),
		Direction:      store.DirectionInbound,
		Role:           store.RoleCustomer,
		Content:        msg.Content,
		Metadata:       inboundMeta,
	}); err != nil {
		result.Err = fmt.Errorf("store inbound message: %w", err)
		return result
	}

	p.recorder.Record(ctx, metrics.TypeSentiment, score, msg.Channel.String(), map[string]any{
		"customer_id": customer.ID,
	})

	currentPriority, _ := msg.Metadata["priority"].(string)
	adjusted := ticket.RoutePriority(score, currentPriority)
	result.Priority = adjusted
	if currentPriority != "" && adjusted != currentPriority {
		p.logger.Info("sentiment priority routing",
			slog.String("from", currentPriority),
			slog.String("to", adjusted),
			slog.Float64("sentiment", score),
		)
	}

	if decision, escalate := p.guard.Check(msg.Content, score); escalate {
		if err := p.escalate(ctx, msg, customer, conv, decision.Reason); err != nil {
			result.Err = err
			return result
		}
		result.Escalated = true
		p.recorder.Record(ctx, metrics.TypeEscalation, 1.0, msg.Channel.String(), map[string]any{
			"reason":      decision.Reason,
			"customer_id": customer.ID,
		})
	} else {
		response := p.respond(ctx, msg, customer, conv, score)
		if err := p.storeOutbound(ctx, msg, customer, conv, response, nil); err != nil {
			result.Err = err
			return result
		}
		p.deliver(ctx, msg.Channel, response, msg.CustomerIdentifier, msg.Metadata)
	}

	latency := float64(time.Since(started).Milliseconds())
	result.LatencyMs = latency
	p.recorder.Record(ctx, metrics.TypeResponseLatency, latency, msg.Channel.String(), nil)
	p.recorder.Record(ctx, metrics.TypeConversationCount, 1.0, msg.Channel.String(), nil)
	p.recorder.Record(ctx, metrics.TypeMessageVolume, 1.0, msg.Channel.String(), nil)

	p.logger.Info("message processed",
		slog.String("channel", msg.Channel.String()),
		slog.Bool("escalated", result.Escalated),
		slog.Float64("latency_ms", latency),
	)

	result.Status = StatusProcessed
	result.Err = nil
	return result
}

// escalate runs the guardrail escalation path: ticket, status transitions,
// templated response, outbound message, delivery.
func (p *Processor) escalate(ctx context.Context, msg channel.InboundMessage, customer store.Customer, conv store.Conversation, reason string) error {
	t, err := p.tickets.Create(ctx, store.NewTicket{
		CustomerID:     customer.ID,
		Subject:        "Escalation: " + reason,
		Category:       escalationCategory(reason),
		Priority:       ticket.PriorityHigh,
		SourceChannel:  msg.Channel.String(),
		ConversationID: conv.ID,
	})
	if err != nil {
		return err
	}
	if err := p.tickets.MarkEscalated(ctx, t.ID, reason); err != nil {
		return err
	}
	if err := p.conversations.Escalate(ctx, conv.ID, reason); err != nil {
		return err
	}

	formatted := p.format(msg.Channel, guardrail.ResponseFor(reason, t.TicketNumber), channel.ResponseMeta{
		CustomerName: customer.Name,
		TicketNumber: t.TicketNumber,
		Subject:      msg.Subject,
	})

	if err := p.storeOutbound(ctx, msg, customer, conv, formatted, map[string]any{
		"escalation_reason": reason,
		"ticket_number":     t.TicketNumber,
	}); err != nil {
		return err
	}

	p.deliver(ctx, msg.Channel, formatted, msg.CustomerIdentifier, msg.Metadata)
	return nil
}

// respond invokes the external responder. Any failure falls back to an
// apology so the customer always hears back.
func (p *Processor) respond(ctx context.Context, msg channel.InboundMessage, customer store.Customer, conv store.Conversation, score float64) string {
	res, err := p.responder.Respond(ctx, responder.Request{
		CustomerID:     customer.ID,
		ConversationID: conv.ID,
		Channel:        msg.Channel.String(),
		Message:        msg.Content,
		CustomerName:   customer.Name,
		SentimentScore: score,
	})
	if err != nil {
		p.logger.Error("responder failed, using fallback",
			slog.String("conversation_id", conv.ID),
			slog.String("error", err.Error()),
		)
		return p.format(msg.Channel, fallbackResponse, channel.ResponseMeta{CustomerName: customer.Name})
	}
	return p.format(msg.Channel, res.Response, channel.ResponseMeta{
		CustomerName: customer.Name,
		TicketNumber: res.TicketNumber,
		Subject:      msg.Subject,
	})
}

func (p *Processor) storeOutbound(ctx context.Context, msg channel.InboundMessage, customer store.Customer, conv store.Conversation, content string, metadata map[string]any) error {
	if err := p.storeMessage(ctx, store.NewMessage{
		ConversationID: conv.ID,
		CustomerID:     customer.ID,
		Channel:        msg.Channel.String(),
		Direction:      store.DirectionOutbound,
		Role:           store.RoleAgent,
		Content:        content,
		Metadata:       metadata,
	}); err != nil {
		return fmt.Errorf("store outbound message: %w", err)
	}
	return nil
}

// storeMessage persists one audit log row under the store timeout so a
// stalled database cannot wedge the worker loop.
func (p *Processor) storeMessage(ctx context.Context, in store.NewMessage) error {
	storeCtx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()
	_, err := p.messages.Store(storeCtx, in)
	return err
}

// format applies channel formatting when an adapter is registered and falls
// back to the raw text otherwise.
func (p *Processor) format(ch channel.ChannelType, response string, meta channel.ResponseMeta) string {
	adapter, ok := p.registry.Get(ch)
	if !ok {
		return response
	}
	return adapter.FormatResponse(response, meta)
}

// deliver hands the formatted response to the channel adapter. Delivery
// failures are logged, not fatal: the message is already persisted.
func (p *Processor) deliver(ctx context.Context, ch channel.ChannelType, formatted, destination string, msgMeta map[string]any) {
	adapter, ok := p.registry.Get(ch)
	if !ok {
		p.logger.Warn("no adapter for channel, delivery skipped", slog.String("channel", ch.String()))
		return
	}
	deliverCtx, cancel := context.WithTimeout(ctx, p.deliverTimeout)
	defer cancel()
	if _, err := adapter.Deliver(deliverCtx, formatted, destination, msgMeta); err != nil {
		p.logger.Error("delivery failed",
			slog.String("channel", ch.String()),
			slog.String("error", err.Error()),
		)
	}
}

func escalationCategory(reason string) string {
	switch reason {
	case guardrail.ReasonAbusiveLanguage:
		return "complaint"
	case guardrail.ReasonRefund, guardrail.ReasonPricing:
		return "billing"
	default:
		return "technical"
	}
}
