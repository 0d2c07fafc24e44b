package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/store"
	"github.com/omnidesk/omnidesk/internal/ticket"
)

// TicketResponseEntry is one agent reply attached to a ticket.
type TicketResponseEntry struct {
	Content   string    `json:"content"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketView is the public shape of a ticket.
type TicketView struct {
	TicketID      string                `json:"ticket_id"`
	Status        string                `json:"status"`
	Category      string                `json:"category"`
	Priority      string                `json:"priority"`
	Subject       string                `json:"subject"`
	SourceChannel string                `json:"source_channel"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	ResolvedAt    *time.Time            `json:"resolved_at,omitempty"`
	Responses     []TicketResponseEntry `json:"responses,omitempty"`
}

// TicketsHandler serves ticket lookups and status transitions.
type TicketsHandler struct {
	tickets       *store.TicketStore
	customers     *store.CustomerStore
	messages      *store.MessageStore
	service       *ticket.Service
	conversations *conversation.Manager
	logger        *slog.Logger
}

func NewTicketsHandler(log *slog.Logger, tickets *store.TicketStore, customers *store.CustomerStore, messages *store.MessageStore, service *ticket.Service, conversations *conversation.Manager) *TicketsHandler {
	return &TicketsHandler{
		tickets:       tickets,
		customers:     customers,
		messages:      messages,
		service:       service,
		conversations: conversations,
		logger:        log.With(slog.String("handler", "tickets")),
	}
}

func (h *TicketsHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/tickets/:number", h.GetByNumber)
	e.GET("/api/v1/tickets", h.ListByEmail)
	e.PATCH("/api/v1/tickets/:number/resolve", h.Resolve)
	e.PATCH("/api/v1/tickets/:number/priority", h.SetPriority)
}

// GetByNumber returns one ticket by its TKT-nnnn number, with the agent
// replies from its conversation.
func (h *TicketsHandler) GetByNumber(c echo.Context) error {
	number := strings.TrimSpace(c.Param("number"))
	ticket, err := h.tickets.GetByNumber(c.Request().Context(), number)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		h.logger.Error("ticket lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	view := ticketView(ticket)
	if ticket.ConversationID != "" {
		msgs, err := h.messages.ByConversation(c.Request().Context(), ticket.ConversationID, 0)
		if err != nil {
			h.logger.Warn("conversation messages unavailable", slog.Any("error", err))
		}
		for _, m := range msgs {
			if m.Direction == store.DirectionOutbound && m.Role == store.RoleAgent {
				view.Responses = append(view.Responses, TicketResponseEntry{
					Content:   m.Content,
					Channel:   m.Channel,
					CreatedAt: m.CreatedAt,
				})
			}
		}
	}

	return c.JSON(http.StatusOK, view)
}

// ListByEmail returns a customer's tickets, newest first.
func (h *TicketsHandler) ListByEmail(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email query parameter is required")
	}

	customer, err := h.customers.GetByEmail(c.Request().Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusOK, map[string]any{"tickets": []TicketView{}})
	}
	if err != nil {
		h.logger.Error("customer lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	tickets, err := h.tickets.ByCustomer(c.Request().Context(), customer.ID, 0)
	if err != nil {
		h.logger.Error("ticket list failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	views := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, ticketView(t))
	}
	return c.JSON(http.StatusOK, map[string]any{"tickets": views})
}

// ResolveTicketRequest carries optional resolution notes.
type ResolveTicketRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// Resolve marks a ticket resolved and closes its conversation.
func (h *TicketsHandler) Resolve(c echo.Context) error {
	number := strings.TrimSpace(c.Param("number"))
	t, err := h.tickets.GetByNumber(c.Request().Context(), number)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		h.logger.Error("ticket lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	var req ResolveTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if err := h.service.Resolve(c.Request().Context(), t.ID, req.ResolutionNotes); err != nil {
		h.logger.Error("ticket resolve failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "resolve failed")
	}
	if t.ConversationID != "" {
		if err := h.conversations.Close(c.Request().Context(), t.ConversationID, "resolved"); err != nil {
			h.logger.Warn("conversation close failed", slog.Any("error", err))
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ticket_id": t.TicketNumber,
		"status":    store.TicketResolved,
	})
}

// SetPriorityRequest carries the new priority for a ticket.
type SetPriorityRequest struct {
	Priority string `json:"priority"`
}

// SetPriority changes a ticket's priority.
func (h *TicketsHandler) SetPriority(c echo.Context) error {
	number := strings.TrimSpace(c.Param("number"))
	t, err := h.tickets.GetByNumber(c.Request().Context(), number)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		h.logger.Error("ticket lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	var req SetPriorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if err := h.service.SetPriority(c.Request().Context(), t.ID, req.Priority); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ticket_id": t.TicketNumber,
		"priority":  req.Priority,
	})
}

func ticketView(t store.Ticket) TicketView {
	return TicketView{
		TicketID:      t.TicketNumber,
		Status:        t.Status,
		Category:      t.Category,
		Priority:      t.Priority,
		Subject:       t.Subject,
		SourceChannel: t.SourceChannel,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		ResolvedAt:    t.ResolvedAt,
	}
}
