package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/store"
)

// ArticleView is one knowledge base article in the API response.
type ArticleView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// KnowledgeHandler serves knowledge base articles by category, the same
// lookup the responder performs when drafting replies.
type KnowledgeHandler struct {
	knowledge *store.KnowledgeStore
	logger    *slog.Logger
}

func NewKnowledgeHandler(log *slog.Logger, knowledge *store.KnowledgeStore) *KnowledgeHandler {
	return &KnowledgeHandler{
		knowledge: knowledge,
		logger:    log.With(slog.String("handler", "knowledge")),
	}
}

func (h *KnowledgeHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/kb/articles", h.Articles)
}

func (h *KnowledgeHandler) Articles(c echo.Context) error {
	category := c.QueryParam("category")
	if category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "category is required")
	}

	limit := 5
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 50 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be between 1 and 50")
		}
		limit = parsed
	}

	articles, err := h.knowledge.ByCategory(c.Request().Context(), category, limit)
	if err != nil {
		h.logger.Error("knowledge lookup failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "knowledge base unavailable")
	}

	views := make([]ArticleView, 0, len(articles))
	for _, a := range articles {
		views = append(views, ArticleView{
			ID:       a.ID,
			Title:    a.Title,
			Content:  a.Content,
			Category: a.Category,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"category": category,
		"articles": views,
	})
}
