package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Conversation statuses.
const (
	ConversationActive    = "active"
	ConversationEscalated = "escalated"
	ConversationClosed    = "closed"
)

// Ticket statuses.
const (
	TicketOpen      = "open"
	TicketEscalated = "escalated"
	TicketResolved  = "resolved"
)

// Message directions and roles.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	RoleCustomer      = "customer"
	RoleAgent         = "agent"
)

// Customer is the durable, channel-independent customer record.
type Customer struct {
	ID        string
	Email     string
	Phone     string
	Name      string
	Company   string
	Plan      string
	CreatedAt time.Time
}

// NewCustomer is the input for creating a customer.
type NewCustomer struct {
	Email   string
	Phone   string
	Name    string
	Company string
	Plan    string
}

// CustomerUpdate enumerates every updatable customer column. Nil fields are
// left untouched.
type CustomerUpdate struct {
	Email   *string
	Phone   *string
	Name    *string
	Company *string
	Plan    *string
}

// Conversation is a contiguous thread of interaction with one customer.
type Conversation struct {
	ID               string
	CustomerID       string
	Channel          string
	Status           string
	ResolutionType   string
	EscalationReason string
	CreatedAt        time.Time
	ClosedAt         *time.Time
}

// Message is one append-only audit log entry, inbound or outbound.
type Message struct {
	ID             string
	ConversationID string
	CustomerID     string
	Channel        string
	Direction      string
	Role           string
	Content        string
	ContentType    string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// NewMessage is the input for storing a message.
type NewMessage struct {
	ConversationID string
	CustomerID     string
	Channel        string
	Direction      string
	Role           string
	Content        string
	ContentType    string
	Metadata       map[string]any
}

// Ticket is a tracked customer contact event.
type Ticket struct {
	ID               string
	CustomerID       string
	TicketNumber     string
	Subject          string
	Category         string
	Priority         string
	Status           string
	SourceChannel    string
	ConversationID   string
	EscalationReason string
	ResolutionNotes  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ResolvedAt       *time.Time
}

// NewTicket is the input for creating a ticket. The ticket number is assigned
// by the database sequence.
type NewTicket struct {
	CustomerID     string
	Subject        string
	Category       string
	Priority       string
	SourceChannel  string
	ConversationID string
}

// ChannelMetrics is one channel's rollup over a trailing window.
type ChannelMetrics struct {
	Channel            string
	TotalConversations int64
	AvgSentiment       float64
	EscalationCount    int64
	AvgLatencyMs       float64
	MessageVolume      int64
}

// MetricPoint is one recorded metric data point.
type MetricPoint struct {
	ID         string
	MetricType string
	Value      float64
	Channel    string
	Metadata   map[string]any
	RecordedAt time.Time
}

// Article is a knowledge base entry.
type Article struct {
	ID       string
	Title    string
	Content  string
	Category string
}
