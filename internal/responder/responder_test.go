package responder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omnidesk/omnidesk/internal/config"
)

func TestRespond(t *testing.T) {
	t.Parallel()

	var received Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/respond" {
			t.Errorf("path = %q, want /respond", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Result{
			Status:       "ok",
			Response:     "Your refund is on its way.",
			TicketNumber: "TKT-55",
		})
	}))
	defer srv.Close()

	client := NewClient(slog.Default(), config.ResponderConfig{BaseURL: srv.URL, TimeoutSeconds: 5})
	result, err := client.Respond(context.Background(), Request{
		CustomerID:     "cust-1",
		ConversationID: "conv-1",
		Channel:        "email",
		Message:        "Where is my refund?",
		SentimentScore: 0.25,
	})
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	if result.Response != "Your refund is on its way." {
		t.Errorf("Response = %q", result.Response)
	}
	if result.TicketNumber != "TKT-55" {
		t.Errorf("TicketNumber = %q", result.TicketNumber)
	}
	if received.CustomerID != "cust-1" || received.SentimentScore != 0.25 {
		t.Errorf("forwarded request = %+v", received)
	}
}

func TestRespondNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(slog.Default(), config.ResponderConfig{BaseURL: srv.URL, TimeoutSeconds: 5})
	_, err := client.Respond(context.Background(), Request{Message: "hello"})
	if err == nil {
		t.Fatal("Respond() should fail on non-200 status")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want status code mentioned", err)
	}
}

func TestRespondUnreachable(t *testing.T) {
	t.Parallel()

	client := NewClient(slog.Default(), config.ResponderConfig{BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1})
	if _, err := client.Respond(context.Background(), Request{Message: "hello"}); err == nil {
		t.Fatal("Respond() should fail when the service is unreachable")
	}
}
