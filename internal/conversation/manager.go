package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omnidesk/omnidesk/internal/store"
)

// ConversationStore is the subset of conversation persistence the manager needs.
type ConversationStore interface {
	Create(ctx context.Context, customerID, channel string) (store.Conversation, error)
	Get(ctx context.Context, id string) (store.Conversation, error)
	ActiveByCustomer(ctx context.Context, customerID string) ([]store.Conversation, error)
	ActiveByCustomerChannel(ctx context.Context, customerID, channel string) ([]store.Conversation, error)
	UpdateStatus(ctx context.Context, id, status, resolutionType, escalationReason string) error
	Close(ctx context.Context, id, resolutionType string) error
}

// Manager attaches inbound messages to conversations. By default a customer
// has at most one active conversation across all channels, so a thread that
// starts on email and continues on WhatsApp stays a single conversation.
type Manager struct {
	conversations ConversationStore
	logger        *slog.Logger

	// scopeByChannel switches to per-channel active conversations instead
	// of one per customer.
	scopeByChannel bool
}

func NewManager(log *slog.Logger, conversations ConversationStore, scopeByChannel bool) *Manager {
	return &Manager{
		conversations:  conversations,
		logger:         log.With(slog.String("component", "conversation")),
		scopeByChannel: scopeByChannel,
	}
}

// Resolve returns the conversation an inbound message belongs to, creating a
// new active conversation when the customer has none. When multiple active
// conversations exist the most recently created one wins.
func (m *Manager) Resolve(ctx context.Context, customerID, channel string) (store.Conversation, error) {
	var (
		active []store.Conversation
		err    error
	)
	if m.scopeByChannel {
		active, err = m.conversations.ActiveByCustomerChannel(ctx, customerID, channel)
	} else {
		active, err = m.conversations.ActiveByCustomer(ctx, customerID)
	}
	if err != nil {
		return store.Conversation{}, fmt.Errorf("list active conversations: %w", err)
	}
	if len(active) > 0 {
		return active[0], nil
	}

	conv, err := m.conversations.Create(ctx, customerID, channel)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	m.logger.Info("conversation started",
		slog.String("conversation_id", conv.ID),
		slog.String("customer_id", customerID),
		slog.String("channel", channel),
	)
	return conv, nil
}

// Escalate marks a conversation as escalated. Escalation is one way: the
// conversation stays escalated until explicitly resolved or closed.
func (m *Manager) Escalate(ctx context.Context, id, reason string) error {
	conv, err := m.conversations.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv.Status == store.ConversationEscalated {
		return nil
	}
	if err := m.conversations.UpdateStatus(ctx, id, store.ConversationEscalated, "", reason); err != nil {
		return fmt.Errorf("escalate conversation: %w", err)
	}
	m.logger.Info("conversation escalated",
		slog.String("conversation_id", id),
		slog.String("reason", reason),
	)
	return nil
}

// Close marks a conversation closed with the given resolution type.
func (m *Manager) Close(ctx context.Context, id, resolutionType string) error {
	if err := m.conversations.Close(ctx, id, resolutionType); err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	return nil
}
