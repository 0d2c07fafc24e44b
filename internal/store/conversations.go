package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationColumns = `id::text, customer_id::text, channel, status, COALESCE(resolution_type, ''), COALESCE(escalation_reason, ''), created_at, closed_at`

// ConversationStore persists conversation threads.
type ConversationStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewConversationStore(log *slog.Logger, pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{
		pool:   pool,
		logger: log.With(slog.String("store", "conversations")),
	}
}

// Create opens a new active conversation for a customer on a channel.
func (s *ConversationStore) Create(ctx context.Context, customerID, channel string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (customer_id, channel)
		 VALUES ($1, $2)
		 RETURNING `+conversationColumns,
		customerID, channel,
	)
	conversation, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

// Get finds a conversation by id.
func (s *ConversationStore) Get(ctx context.Context, id string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conversation, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conversation, nil
}

// ActiveByCustomer returns a customer's active conversations, newest first.
func (s *ConversationStore) ActiveByCustomer(ctx context.Context, customerID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE customer_id = $1 AND status = 'active'
		 ORDER BY created_at DESC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("active conversations: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

// ActiveByCustomerChannel returns active conversations restricted to one channel.
func (s *ConversationStore) ActiveByCustomerChannel(ctx context.Context, customerID, channel string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE customer_id = $1 AND channel = $2 AND status = 'active'
		 ORDER BY created_at DESC`,
		customerID, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("active conversations by channel: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

// UpdateStatus transitions a conversation and records resolution context.
func (s *ConversationStore) UpdateStatus(ctx context.Context, id, status, resolutionType, escalationReason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET status = $2, resolution_type = NULLIF($3, ''), escalation_reason = NULLIF($4, '')
		 WHERE id = $1`,
		id, status, resolutionType, escalationReason,
	)
	if err != nil {
		return fmt.Errorf("update conversation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close marks a conversation closed with a resolution type.
func (s *ConversationStore) Close(ctx context.Context, id, resolutionType string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET status = 'closed', resolution_type = $2, closed_at = NOW()
		 WHERE id = $1`,
		id, resolutionType,
	)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.CustomerID, &c.Channel, &c.Status, &c.ResolutionType, &c.EscalationReason, &c.CreatedAt, &c.ClosedAt)
	return c, err
}

func collectConversations(rows pgx.Rows) ([]Conversation, error) {
	var items []Conversation
	for rows.Next() {
		conversation, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, conversation)
	}
	return items, rows.Err()
}
