package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// KnowledgeStore reads knowledge base articles.
type KnowledgeStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewKnowledgeStore(log *slog.Logger, pool *pgxpool.Pool) *KnowledgeStore {
	return &KnowledgeStore{
		pool:   pool,
		logger: log.With(slog.String("store", "knowledge")),
	}
}

// ByCategory returns articles in a category.
func (s *KnowledgeStore) ByCategory(ctx context.Context, category string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, title, content, category
		 FROM knowledge_base
		 WHERE category = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		category, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge by category: %w", err)
	}
	defer rows.Close()

	var items []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Category); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
