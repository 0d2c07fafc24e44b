package channel

import (
	"errors"
	"time"
)

// ErrInvalidPayload is returned by adapters when a raw payload is missing
// required fields. The API boundary maps it to a client-visible 4xx.
var ErrInvalidPayload = errors.New("invalid channel payload")

// ChannelType identifies a supported inbound/outbound channel.
type ChannelType string

const (
	TypeEmail    ChannelType = "email"
	TypeWhatsApp ChannelType = "whatsapp"
	TypeWebForm  ChannelType = "web_form"
)

func (t ChannelType) String() string { return string(t) }

// IdentifierType classifies the raw customer identifier carried by a message.
type IdentifierType string

const (
	IdentifierEmail IdentifierType = "email"
	IdentifierPhone IdentifierType = "phone"
)

func (t IdentifierType) String() string { return string(t) }

// InboundMessage is the canonical shape every adapter normalizes into.
// It is published verbatim onto the ingestion topic as JSON.
type InboundMessage struct {
	CustomerIdentifier string         `json:"customer_identifier"`
	IdentifierType     IdentifierType `json:"identifier_type"`
	Channel            ChannelType    `json:"channel"`
	Content            string         `json:"content"`
	Subject            string         `json:"subject,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}

// ResponseMeta carries the per-message context adapters use when formatting
// an outbound response.
type ResponseMeta struct {
	CustomerName string
	TicketNumber string
	Subject      string
	ThreadID     string
}
