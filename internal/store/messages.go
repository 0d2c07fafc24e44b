package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id::text, conversation_id::text, customer_id::text, channel, direction, role, content, content_type, metadata, created_at`

// MessageStore persists the append-only message audit log.
type MessageStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewMessageStore(log *slog.Logger, pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{
		pool:   pool,
		logger: log.With(slog.String("store", "messages")),
	}
}

// Store appends one message row.
func (s *MessageStore) Store(ctx context.Context, in NewMessage) (Message, error) {
	contentType := in.ContentType
	if contentType == "" {
		contentType = "text"
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return Message{}, fmt.Errorf("encode message metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, customer_id, channel, direction, role, content, content_type, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		 RETURNING `+messageColumns,
		in.ConversationID, in.CustomerID, in.Channel, in.Direction, in.Role, in.Content, contentType, metaJSON,
	)
	message, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("store message: %w", err)
	}
	return message, nil
}

// ByConversation returns a conversation's messages in chronological order.
func (s *MessageStore) ByConversation(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("messages by conversation: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// CustomerHistory returns a customer's most recent messages across all channels.
func (s *MessageStore) CustomerHistory(ctx context.Context, customerID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+`
		 FROM messages
		 WHERE customer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		customerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("customer history: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	var metaJSON []byte
	err := row.Scan(&m.ID, &m.ConversationID, &m.CustomerID, &m.Channel, &m.Direction, &m.Role, &m.Content, &m.ContentType, &metaJSON, &m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
			return Message{}, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return m, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	var items []Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, message)
	}
	return items, rows.Err()
}
