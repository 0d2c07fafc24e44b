package handlers

import "context"

// ErrorResponse is the JSON error body returned by API handlers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Publisher pushes normalized messages onto the ingestion topic.
type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}
