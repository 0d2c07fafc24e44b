package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/guardrail"
	"github.com/omnidesk/omnidesk/internal/metrics"
	"github.com/omnidesk/omnidesk/internal/responder"
	"github.com/omnidesk/omnidesk/internal/sentiment"
	"github.com/omnidesk/omnidesk/internal/store"
)

type fakeIdentity struct {
	customer store.Customer
	err      error
}

func (f *fakeIdentity) Resolve(ctx context.Context, identifierValue string, identifierType channel.IdentifierType, ch channel.ChannelType) (store.Customer, error) {
	return f.customer, f.err
}

type fakeConversations struct {
	conv       store.Conversation
	escalated  []string
	resolveErr error
}

func (f *fakeConversations) Resolve(ctx context.Context, customerID, channel string) (store.Conversation, error) {
	return f.conv, f.resolveErr
}

func (f *fakeConversations) Escalate(ctx context.Context, id, reason string) error {
	f.escalated = append(f.escalated, id+":"+reason)
	return nil
}

type fakeTickets struct {
	created   []store.NewTicket
	escalated []string
}

func (f *fakeTickets) Create(ctx context.Context, in store.NewTicket) (store.Ticket, error) {
	f.created = append(f.created, in)
	return store.Ticket{ID: "t1", TicketNumber: "TKT-1001", CustomerID: in.CustomerID, Priority: in.Priority, Category: in.Category}, nil
}

func (f *fakeTickets) MarkEscalated(ctx context.Context, id, reason string) error {
	f.escalated = append(f.escalated, id+":"+reason)
	return nil
}

type fakeMessages struct {
	stored   []store.NewMessage
	storeErr error
}

func (f *fakeMessages) Store(ctx context.Context, in store.NewMessage) (store.Message, error) {
	if f.storeErr != nil {
		return store.Message{}, f.storeErr
	}
	f.stored = append(f.stored, in)
	return store.Message{ID: "m1"}, nil
}

type fakeResponder struct {
	result responder.Result
	err    error
	calls  int
}

func (f *fakeResponder) Respond(ctx context.Context, req responder.Request) (responder.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeMetricStore struct {
	recorded []string
}

func (f *fakeMetricStore) Record(ctx context.Context, metricType string, value float64, channel string, metadata map[string]any) error {
	f.recorded = append(f.recorded, metricType)
	return nil
}

func (f *fakeMetricStore) ChannelMetrics(ctx context.Context, periodHours int) ([]store.ChannelMetrics, error) {
	return nil, nil
}

type fakeAdapter struct {
	channelType channel.ChannelType
	delivered   []string
	deliverErr  error
}

func (f *fakeAdapter) Type() channel.ChannelType { return f.channelType }

func (f *fakeAdapter) Normalize(raw map[string]any) (channel.InboundMessage, error) {
	return channel.InboundMessage{}, nil
}

func (f *fakeAdapter) FormatResponse(response string, meta channel.ResponseMeta) string {
	return response
}

func (f *fakeAdapter) Deliver(ctx context.Context, formatted, destination string, meta map[string]any) (bool, error) {
	f.delivered = append(f.delivered, formatted)
	if f.deliverErr != nil {
		return false, f.deliverErr
	}
	return true, nil
}

type processorFixture struct {
	processor     *Processor
	identity      *fakeIdentity
	conversations *fakeConversations
	tickets       *fakeTickets
	messages      *fakeMessages
	responder     *fakeResponder
	metrics       *fakeMetricStore
	adapter       *fakeAdapter
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()

	f := &processorFixture{
		identity:      &fakeIdentity{customer: store.Customer{ID: "c1", Name: "Jo", Email: "jo@example.com"}},
		conversations: &fakeConversations{conv: store.Conversation{ID: "conv1", Status: store.ConversationActive}},
		tickets:       &fakeTickets{},
		messages:      &fakeMessages{},
		responder:     &fakeResponder{result: responder.Result{Status: "success", Response: "Here is how to fix it."}},
		metrics:       &fakeMetricStore{},
		adapter:       &fakeAdapter{channelType: channel.TypeWebForm},
	}
	registry := channel.NewRegistry()
	registry.MustRegister(f.adapter)

	f.processor = NewProcessor(
		slog.Default(),
		config.PipelineConfig{},
		registry,
		f.identity,
		f.conversations,
		f.tickets,
		f.messages,
		sentiment.NewKeywordScorer(),
		guardrail.NewEngine(),
		f.responder,
		metrics.NewRecorder(slog.Default(), f.metrics),
	)
	return f
}

func rawMessage(t *testing.T, content string) []byte {
	t.Helper()
	data, err := json.Marshal(channel.InboundMessage{
		CustomerIdentifier: "jo@example.com",
		IdentifierType:     channel.IdentifierEmail,
		Channel:            channel.TypeWebForm,
		Content:            content,
		Timestamp:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestProcessHappyPath(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	result := f.processor.Process(context.Background(), rawMessage(t, "Where can I change my billing address?"))

	if result.Status != StatusProcessed {
		t.Fatalf("expected processed, got %q (%v)", result.Status, result.Err)
	}
	if result.Escalated {
		t.Fatal("did not expect escalation")
	}
	if f.responder.calls != 1 {
		t.Fatalf("expected one responder call, got %d", f.responder.calls)
	}
	if len(f.messages.stored) != 2 {
		t.Fatalf("expected inbound and outbound messages, got %d", len(f.messages.stored))
	}
	inbound := f.messages.stored[0]
	if inbound.Direction != store.DirectionInbound || inbound.Role != store.RoleCustomer {
		t.Fatalf("unexpected inbound message: %+v", inbound)
	}
	if _, ok := inbound.Metadata["sentiment_score"]; !ok {
		t.Fatal("inbound metadata must carry sentiment_score")
	}
	if len(f.adapter.delivered) != 1 {
		t.Fatalf("expected one delivery, got %d", len(f.adapter.delivered))
	}
	for _, want := range []string{metrics.TypeSentiment, metrics.TypeResponseLatency, metrics.TypeConversationCount, metrics.TypeMessageVolume} {
		if !containsString(f.metrics.recorded, want) {
			t.Fatalf("missing metric %q in %v", want, f.metrics.recorded)
		}
	}
}

func TestProcessRefundKeywordEscalates(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	result := f.processor.Process(context.Background(), rawMessage(t, "I would like a refund for my last invoice"))

	if result.Status != StatusProcessed {
		t.Fatalf("expected processed, got %q (%v)", result.Status, result.Err)
	}
	if !result.Escalated {
		t.Fatal("expected escalation")
	}
	if f.responder.calls != 0 {
		t.Fatal("guardrail trip must bypass the responder")
	}
	if len(f.tickets.created) != 1 {
		t.Fatalf("expected one ticket, got %d", len(f.tickets.created))
	}
	created := f.tickets.created[0]
	if created.Priority != "high" {
		t.Fatalf("escalation tickets are high priority, got %q", created.Priority)
	}
	if created.Category != "billing" {
		t.Fatalf("refund escalations are billing, got %q", created.Category)
	}
	if len(f.conversations.escalated) != 1 {
		t.Fatalf("conversation must be escalated, got %v", f.conversations.escalated)
	}
	outbound := f.messages.stored[len(f.messages.stored)-1]
	if outbound.Metadata["ticket_number"] != "TKT-1001" {
		t.Fatalf("outbound metadata must carry the ticket number: %+v", outbound.Metadata)
	}
	if outbound.Metadata["escalation_reason"] != guardrail.ReasonRefund {
		t.Fatalf("outbound metadata must carry the reason: %+v", outbound.Metadata)
	}
	if !containsString(f.metrics.recorded, metrics.TypeEscalation) {
		t.Fatalf("expected escalation metric in %v", f.metrics.recorded)
	}
	if len(f.adapter.delivered) != 1 || !strings.Contains(f.adapter.delivered[0], "TKT-1001") {
		t.Fatalf("customer must receive the templated escalation response: %v", f.adapter.delivered)
	}
}

func TestProcessNegativeSentimentEscalates(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	result := f.processor.Process(context.Background(), rawMessage(t, "I am so frustrated and disappointed, everything keeps crashing"))

	if result.Status != StatusProcessed {
		t.Fatalf("expected processed, got %q (%v)", result.Status, result.Err)
	}
	if !result.Escalated {
		t.Fatal("expected escalation on low sentiment")
	}
	if result.Sentiment >= 0.3 {
		t.Fatalf("expected sentiment below threshold, got %v", result.Sentiment)
	}
	if len(f.tickets.created) != 1 || f.tickets.created[0].Category != "technical" {
		t.Fatalf("sentiment escalations default to technical: %+v", f.tickets.created)
	}
}

func TestProcessResponderFailureFallsBack(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	f.responder.err = errors.New("upstream timeout")

	result := f.processor.Process(context.Background(), rawMessage(t, "How do I export my data to CSV, is that easy?"))

	if result.Status != StatusProcessed {
		t.Fatalf("responder failure still counts as processed, got %q (%v)", result.Status, result.Err)
	}
	if len(f.adapter.delivered) != 1 {
		t.Fatalf("expected apology delivery, got %d", len(f.adapter.delivered))
	}
	if strings.Contains(f.adapter.delivered[0], "upstream timeout") {
		t.Fatal("raw error text must never reach the customer")
	}
	if !strings.Contains(f.adapter.delivered[0], "apologize") {
		t.Fatalf("expected apology text, got %q", f.adapter.delivered[0])
	}
}

func TestProcessMalformedPayload(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	result := f.processor.Process(context.Background(), []byte("{not json"))

	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", result.Status)
	}
	if result.Deserialized {
		t.Fatal("malformed payload must be reported as not deserialized")
	}
	if len(f.messages.stored) != 0 {
		t.Fatal("nothing should be persisted for a malformed payload")
	}
}

func TestProcessIdentityFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	f.identity.err = errors.New("identity store unavailable")

	result := f.processor.Process(context.Background(), rawMessage(t, "hello"))

	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", result.Status)
	}
	if !result.Deserialized {
		t.Fatal("payload was valid JSON")
	}
	if !strings.Contains(result.Err.Error(), "resolve customer") {
		t.Fatalf("unexpected error: %v", result.Err)
	}
}

func TestProcessCriticalStoreFailure(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	f.messages.storeErr = errors.New("connection refused")

	result := f.processor.Process(context.Background(), rawMessage(t, "hello there friend"))

	if result.Status != StatusFailed {
		t.Fatalf("message store failure is fatal, got %q", result.Status)
	}
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
