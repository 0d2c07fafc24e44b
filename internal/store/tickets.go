package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `id::text, customer_id::text, ticket_number, subject, category, priority, status, source_channel,
	COALESCE(conversation_id::text, ''), COALESCE(escalation_reason, ''), COALESCE(resolution_notes, ''),
	created_at, updated_at, resolved_at`

// TicketStore persists support tickets. Ticket numbers are assigned by the
// database sequence so they stay monotonic across workers.
type TicketStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewTicketStore(log *slog.Logger, pool *pgxpool.Pool) *TicketStore {
	return &TicketStore{
		pool:   pool,
		logger: log.With(slog.String("store", "tickets")),
	}
}

// Create inserts a new open ticket.
func (s *TicketStore) Create(ctx context.Context, in NewTicket) (Ticket, error) {
	priority := in.Priority
	if priority == "" {
		priority = "medium"
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tickets (customer_id, subject, category, priority, source_channel, conversation_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid)
		 RETURNING `+ticketColumns,
		in.CustomerID, in.Subject, in.Category, priority, in.SourceChannel, in.ConversationID,
	)
	ticket, err := scanTicket(row)
	if err != nil {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	return ticket, nil
}

// GetByNumber finds a ticket by its human-facing TKT-nnnn number.
func (s *TicketStore) GetByNumber(ctx context.Context, ticketNumber string) (Ticket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE ticket_number = $1`, ticketNumber)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("get ticket by number: %w", err)
	}
	return ticket, nil
}

// ByCustomer returns a customer's tickets, newest first.
func (s *TicketStore) ByCustomer(ctx context.Context, customerID string, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets
		 WHERE customer_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		customerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tickets by customer: %w", err)
	}
	defer rows.Close()

	var items []Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, ticket)
	}
	return items, rows.Err()
}

// UpdateStatus transitions a ticket. Moving to resolved stamps resolved_at.
func (s *TicketStore) UpdateStatus(ctx context.Context, id, status, escalationReason, resolutionNotes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets
		 SET status = $2,
		     escalation_reason = COALESCE(NULLIF($3, ''), escalation_reason),
		     resolution_notes = COALESCE(NULLIF($4, ''), resolution_notes),
		     resolved_at = CASE WHEN $2 = 'resolved' THEN NOW() ELSE resolved_at END,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, status, escalationReason, resolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePriority sets a ticket's priority.
func (s *TicketStore) UpdatePriority(ctx context.Context, id, priority string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET priority = $2, updated_at = NOW() WHERE id = $1`,
		id, priority,
	)
	if err != nil {
		return fmt.Errorf("update ticket priority: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.CustomerID, &t.TicketNumber, &t.Subject, &t.Category, &t.Priority, &t.Status,
		&t.SourceChannel, &t.ConversationID, &t.EscalationReason, &t.ResolutionNotes,
		&t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt)
	return t, err
}
