package ticket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omnidesk/omnidesk/internal/store"
)

// Priorities in ascending order of urgency.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// TicketStore is the subset of ticket persistence the service needs.
type TicketStore interface {
	Create(ctx context.Context, in store.NewTicket) (store.Ticket, error)
	UpdateStatus(ctx context.Context, id, status, escalationReason, resolutionNotes string) error
	UpdatePriority(ctx context.Context, id, priority string) error
}

// Service creates and transitions tickets.
type Service struct {
	tickets TicketStore
	logger  *slog.Logger
}

func NewService(log *slog.Logger, tickets TicketStore) *Service {
	return &Service{
		tickets: tickets,
		logger:  log.With(slog.String("component", "ticket")),
	}
}

// Create opens a ticket. The ticket number is assigned by the store.
func (s *Service) Create(ctx context.Context, in store.NewTicket) (store.Ticket, error) {
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	t, err := s.tickets.Create(ctx, in)
	if err != nil {
		return store.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	s.logger.Info("ticket created",
		slog.String("ticket_number", t.TicketNumber),
		slog.String("customer_id", t.CustomerID),
		slog.String("priority", t.Priority),
	)
	return t, nil
}

// MarkEscalated transitions a ticket to escalated with the trigger reason.
func (s *Service) MarkEscalated(ctx context.Context, id, reason string) error {
	if err := s.tickets.UpdateStatus(ctx, id, store.TicketEscalated, reason, ""); err != nil {
		return fmt.Errorf("mark ticket escalated: %w", err)
	}
	return nil
}

// Resolve transitions a ticket to resolved with optional notes.
func (s *Service) Resolve(ctx context.Context, id, notes string) error {
	if err := s.tickets.UpdateStatus(ctx, id, store.TicketResolved, "", notes); err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}
	return nil
}

// SetPriority changes a ticket's priority.
func (s *Service) SetPriority(ctx context.Context, id, priority string) error {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("unknown priority: %s", priority)
	}
	if err := s.tickets.UpdatePriority(ctx, id, priority); err != nil {
		return fmt.Errorf("set ticket priority: %w", err)
	}
	return nil
}

// RoutePriority adjusts a ticket priority from sentiment. Priority only ever
// moves up: very negative sentiment forces high, mildly negative sentiment
// promotes low to high, and nothing ever demotes.
func RoutePriority(sentimentScore float64, current string) string {
	if current == "" {
		current = PriorityMedium
	}
	if sentimentScore < 0.3 {
		return PriorityHigh
	}
	if sentimentScore < 0.5 && current == PriorityLow {
		return PriorityHigh
	}
	return current
}
