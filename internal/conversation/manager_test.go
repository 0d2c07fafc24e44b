package conversation

import (
	"context"
	"log/slog"
	"testing"

	"github.com/omnidesk/omnidesk/internal/store"
)

type fakeConversationStore struct {
	active        []store.Conversation
	activeCalls   int
	channelCalls  int
	created       []store.Conversation
	statusUpdates []string
	current       store.Conversation
}

func (f *fakeConversationStore) Create(ctx context.Context, customerID, channel string) (store.Conversation, error) {
	conv := store.Conversation{ID: "conv-new", CustomerID: customerID, Channel: channel, Status: store.ConversationActive}
	f.created = append(f.created, conv)
	return conv, nil
}

func (f *fakeConversationStore) Get(ctx context.Context, id string) (store.Conversation, error) {
	if f.current.ID == id {
		return f.current, nil
	}
	return store.Conversation{}, store.ErrNotFound
}

func (f *fakeConversationStore) ActiveByCustomer(ctx context.Context, customerID string) ([]store.Conversation, error) {
	f.activeCalls++
	return f.active, nil
}

func (f *fakeConversationStore) ActiveByCustomerChannel(ctx context.Context, customerID, channel string) ([]store.Conversation, error) {
	f.channelCalls++
	var matched []store.Conversation
	for _, c := range f.active {
		if c.Channel == channel {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func (f *fakeConversationStore) UpdateStatus(ctx context.Context, id, status, resolutionType, escalationReason string) error {
	f.statusUpdates = append(f.statusUpdates, id+":"+status+":"+escalationReason)
	return nil
}

func (f *fakeConversationStore) Close(ctx context.Context, id, resolutionType string) error {
	f.statusUpdates = append(f.statusUpdates, id+":closed:"+resolutionType)
	return nil
}

func TestResolveReturnsMostRecentActive(t *testing.T) {
	t.Parallel()

	fake := &fakeConversationStore{active: []store.Conversation{
		{ID: "conv-2", Channel: "whatsapp", Status: store.ConversationActive},
		{ID: "conv-1", Channel: "email", Status: store.ConversationActive},
	}}
	m := NewManager(slog.Default(), fake, false)

	conv, err := m.Resolve(context.Background(), "c1", "email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID != "conv-2" {
		t.Fatalf("expected newest active conversation, got %q", conv.ID)
	}
	if len(fake.created) != 0 {
		t.Fatal("must not create when an active conversation exists")
	}
}

func TestResolveIsChannelAgnosticByDefault(t *testing.T) {
	t.Parallel()

	// A thread started on email continues when the customer switches to
	// WhatsApp.
	fake := &fakeConversationStore{active: []store.Conversation{
		{ID: "conv-email", Channel: "email", Status: store.ConversationActive},
	}}
	m := NewManager(slog.Default(), fake, false)

	conv, err := m.Resolve(context.Background(), "c1", "whatsapp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID != "conv-email" {
		t.Fatalf("expected cross-channel continuation, got %q", conv.ID)
	}
	if fake.channelCalls != 0 {
		t.Fatal("channel-scoped lookup must not be used by default")
	}
}

func TestResolveScopedByChannel(t *testing.T) {
	t.Parallel()

	fake := &fakeConversationStore{active: []store.Conversation{
		{ID: "conv-email", Channel: "email", Status: store.ConversationActive},
	}}
	m := NewManager(slog.Default(), fake, true)

	conv, err := m.Resolve(context.Background(), "c1", "whatsapp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID != "conv-new" {
		t.Fatalf("expected a new per-channel conversation, got %q", conv.ID)
	}
	if fake.channelCalls != 1 {
		t.Fatalf("expected channel-scoped lookup, got %d calls", fake.channelCalls)
	}
}

func TestResolveCreatesWhenNoneActive(t *testing.T) {
	t.Parallel()

	fake := &fakeConversationStore{}
	m := NewManager(slog.Default(), fake, false)

	conv, err := m.Resolve(context.Background(), "c1", "web_form")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Status != store.ConversationActive {
		t.Fatalf("new conversation must be active, got %q", conv.Status)
	}
	if len(fake.created) != 1 {
		t.Fatalf("expected one create, got %d", len(fake.created))
	}
}

func TestEscalate(t *testing.T) {
	t.Parallel()

	fake := &fakeConversationStore{current: store.Conversation{ID: "conv-1", Status: store.ConversationActive}}
	m := NewManager(slog.Default(), fake, false)

	if err := m.Escalate(context.Background(), "conv-1", "refund_request"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.statusUpdates) != 1 || fake.statusUpdates[0] != "conv-1:escalated:refund_request" {
		t.Fatalf("unexpected status updates: %v", fake.statusUpdates)
	}
}

func TestEscalateAlreadyEscalatedIsNoop(t *testing.T) {
	t.Parallel()

	fake := &fakeConversationStore{current: store.Conversation{ID: "conv-1", Status: store.ConversationEscalated}}
	m := NewManager(slog.Default(), fake, false)

	if err := m.Escalate(context.Background(), "conv-1", "legal"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.statusUpdates) != 0 {
		t.Fatalf("expected no update for an escalated conversation, got %v", fake.statusUpdates)
	}
}
