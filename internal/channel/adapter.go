package channel

import "context"

// Adapter is the interface every channel adapter must implement. Normalize is
// pure parsing with no side effects; parse time becomes the message timestamp
// because the source stream's own timestamp is not trusted.
type Adapter interface {
	Type() ChannelType

	// Normalize converts a raw channel payload into the canonical
	// InboundMessage. It returns an error wrapping ErrInvalidPayload when
	// required fields are absent.
	Normalize(raw map[string]any) (InboundMessage, error)

	// FormatResponse applies the channel's text contract (greeting, ticket
	// reference, length limits, splitting) to a response body.
	FormatResponse(response string, meta ResponseMeta) string

	// Deliver sends a formatted response to the destination identifier.
	// It reports whether delivery was handed off to the transport.
	Deliver(ctx context.Context, formatted, destination string, meta map[string]any) (bool, error)
}
