// Package webhook receives inbound driver messages and turns them into
// claim, advance, and cancel actions.
//
// Delivery is at-least-once and unordered, so every action behind a
// webhook must be idempotent. Replies are always textual and always
// carried on HTTP 200: provider gateways treat non-2xx as a delivery
// failure and retry, which would double-fire commands.
package webhook

import (
	"time"
)

// Envelope is one normalized inbound message. The transport layer fills
// it from the provider's payload before the middleware chain runs.
type Envelope struct {
	// MessageID is the provider's message identifier, used for
	// deduplication and tracing.
	MessageID string `json:"message_id"`

	// Sender is the driver's address (phone number) as the provider
	// reports it.
	Sender string `json:"sender"`

	// Body is the raw message text.
	Body string `json:"body"`

	// Channel names the inbound channel ("primary", "secondary").
	Channel string `json:"channel,omitempty"`

	// ReceivedAt is when the message arrived at our edge.
	ReceivedAt time.Time `json:"received_at"`
}

// Reply is the textual response handed back to the sender. Always
// delivered with HTTP 200 regardless of the command's outcome.
type Reply struct {
	Text string `json:"text"`
}
