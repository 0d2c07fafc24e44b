package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/store"
)

// SupportFormRequest is the validated web form submission.
type SupportFormRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Subject  string `json:"subject" validate:"required,min=5,max=500"`
	Category string `json:"category" validate:"required,oneof=account_access billing technical how_to feature_request complaint"`
	Priority string `json:"priority" validate:"omitempty,oneof=low medium high"`
	Message  string `json:"message" validate:"required,min=10"`
}

// SupportFormResponse acknowledges a submission with its ticket number.
type SupportFormResponse struct {
	TicketID  string    `json:"ticket_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// IdentityResolver resolves a raw identifier to a customer record.
type IdentityResolver interface {
	Resolve(ctx context.Context, identifierValue string, identifierType channel.IdentifierType, ch channel.ChannelType) (store.Customer, error)
}

// ConversationResolver attaches a submission to a conversation.
type ConversationResolver interface {
	Resolve(ctx context.Context, customerID, channel string) (store.Conversation, error)
}

// TicketCreator opens tickets for form submissions.
type TicketCreator interface {
	Create(ctx context.Context, in store.NewTicket) (store.Ticket, error)
}

// MessageWriter persists the inbound form message.
type MessageWriter interface {
	Store(ctx context.Context, in store.NewMessage) (store.Message, error)
}

// SupportFormHandler accepts web support form submissions. The ticket is
// created synchronously so the response can carry its number; the message
// itself is processed asynchronously through the pipeline.
type SupportFormHandler struct {
	identity      IdentityResolver
	conversations ConversationResolver
	tickets       TicketCreator
	messages      MessageWriter
	publisher     Publisher
	logger        *slog.Logger
}

func NewSupportFormHandler(log *slog.Logger, identity IdentityResolver, conversations ConversationResolver, tickets TicketCreator, messages MessageWriter, publisher Publisher) *SupportFormHandler {
	return &SupportFormHandler{
		identity:      identity,
		conversations: conversations,
		tickets:       tickets,
		messages:      messages,
		publisher:     publisher,
		logger:        log.With(slog.String("handler", "support_form")),
	}
}

func (h *SupportFormHandler) Register(e *echo.Echo) {
	e.POST("/api/v1/support/form", h.Submit)
}

func (h *SupportFormHandler) Submit(c echo.Context) error {
	var form SupportFormRequest
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&form); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if form.Priority == "" {
		form.Priority = "medium"
	}

	ctx := c.Request().Context()

	customer, err := h.identity.Resolve(ctx, form.Email, channel.IdentifierEmail, channel.TypeWebForm)
	if err != nil {
		h.logger.Error("customer resolution failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	}

	conv, err := h.conversations.Resolve(ctx, customer.ID, channel.TypeWebForm.String())
	if err != nil {
		h.logger.Error("conversation resolution failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	}

	if _, err := h.messages.Store(ctx, store.NewMessage{
		ConversationID: conv.ID,
		CustomerID:     customer.ID,
		Channel:        channel.TypeWebForm.String(),
		Direction:      store.DirectionInbound,
		Role:           store.RoleCustomer,
		Content:        form.Message,
		Metadata:       map[string]any{"subject": form.Subject, "category": form.Category},
	}); err != nil {
		h.logger.Error("message store failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	}

	ticket, err := h.tickets.Create(ctx, store.NewTicket{
		CustomerID:     customer.ID,
		Subject:        form.Subject,
		Category:       form.Category,
		Priority:       form.Priority,
		SourceChannel:  channel.TypeWebForm.String(),
		ConversationID: conv.ID,
	})
	if err != nil {
		h.logger.Error("ticket creation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	}

	inbound := channel.InboundMessage{
		CustomerIdentifier: form.Email,
		IdentifierType:     channel.IdentifierEmail,
		Channel:            channel.TypeWebForm,
		Content:            form.Message,
		Subject:            form.Subject,
		Metadata: map[string]any{
			"name":            form.Name,
			"category":        form.Category,
			"priority":        form.Priority,
			"ticket_number":   ticket.TicketNumber,
			"customer_id":     customer.ID,
			"conversation_id": conv.ID,
		},
		Timestamp: time.Now().UTC(),
	}
	// Publish failure is non-blocking, the ticket already exists.
	if err := h.publisher.Publish(ctx, form.Email, inbound); err != nil {
		h.logger.Warn("ingestion publish failed", slog.Any("error", err))
	}

	return c.JSON(http.StatusCreated, SupportFormResponse{
		TicketID:  ticket.TicketNumber,
		Status:    "received",
		Message:   "Your support request has been received. Our team will respond within 30 minutes.",
		CreatedAt: ticket.CreatedAt,
	})
}
