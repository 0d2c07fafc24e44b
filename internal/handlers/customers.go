package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/store"
)

// CustomerView is the public shape of a customer record.
type CustomerView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Name      string    `json:"name,omitempty"`
	Company   string    `json:"company,omitempty"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

// UpdateCustomerRequest carries profile fields to change. Absent fields are
// left untouched.
type UpdateCustomerRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Company *string `json:"company"`
	Plan    *string `json:"plan"`
}

// HistoryEntry is one message in a customer's cross-channel history.
type HistoryEntry struct {
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomersHandler serves customer profiles and message history.
type CustomersHandler struct {
	customers *store.CustomerStore
	messages  *store.MessageStore
	logger    *slog.Logger
}

func NewCustomersHandler(log *slog.Logger, customers *store.CustomerStore, messages *store.MessageStore) *CustomersHandler {
	return &CustomersHandler{
		customers: customers,
		messages:  messages,
		logger:    log.With(slog.String("handler", "customers")),
	}
}

func (h *CustomersHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/customers/:id", h.Get)
	e.PATCH("/api/v1/customers/:id", h.Update)
	e.GET("/api/v1/customers/:id/history", h.History)
}

func (h *CustomersHandler) Get(c echo.Context) error {
	customer, err := h.customers.GetByID(c.Request().Context(), strings.TrimSpace(c.Param("id")))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "customer not found")
	}
	if err != nil {
		h.logger.Error("customer lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, customerView(customer))
}

func (h *CustomersHandler) Update(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))

	var req UpdateCustomerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Name == nil && req.Phone == nil && req.Company == nil && req.Plan == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	customer, err := h.customers.Update(c.Request().Context(), id, store.CustomerUpdate{
		Name:    req.Name,
		Phone:   req.Phone,
		Company: req.Company,
		Plan:    req.Plan,
	})
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "customer not found")
	}
	if err != nil {
		h.logger.Error("customer update failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, customerView(customer))
}

// History returns a customer's recent messages across all channels, newest
// first.
func (h *CustomersHandler) History(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 500")
		}
		limit = parsed
	}

	msgs, err := h.messages.CustomerHistory(c.Request().Context(), id, limit)
	if err != nil {
		h.logger.Error("history lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, HistoryEntry{
			Channel:   m.Channel,
			Direction: m.Direction,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"history": entries})
}

func customerView(c store.Customer) CustomerView {
	return CustomerView{
		ID:        c.ID,
		Email:     c.Email,
		Phone:     c.Phone,
		Name:      c.Name,
		Company:   c.Company,
		Plan:      c.Plan,
		CreatedAt: c.CreatedAt,
	}
}
