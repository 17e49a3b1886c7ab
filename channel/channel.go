// Package channel defines the outbound channel abstraction, per-channel
// statistics, and the health monitor that keeps a rolling availability
// flag per channel without ever blocking dispatch.
package channel

import (
	"context"

	"github.com/xraph/hail/ride"
)

// Well-known channel names. The router treats Primary as the automated
// gateway and Secondary as the provider-direct API.
const (
	Primary   = "primary"
	Secondary = "secondary"
)

// Receipt is the provider's acknowledgment of a delivered broadcast.
type Receipt struct {
	// ProviderMessageID is the provider-side identifier of the outbound
	// message, when the provider returns one.
	ProviderMessageID string `json:"provider_message_id,omitempty"`

	// Recipients is how many drivers the broadcast reached, when known.
	Recipients int `json:"recipients,omitempty"`
}

// Channel is one outbound communication path used to broadcast a ride.
// Implementations must honor the context deadline on Send; the router
// owns retry and timeout policy.
type Channel interface {
	// Name returns the channel's routing name (Primary or Secondary).
	Name() string

	// Send broadcasts the ride. A hard provider rejection must be
	// returned as (or wrapping) hail.ErrSendRejected so the router
	// knows not to retry it.
	Send(ctx context.Context, r *ride.Ride) (*Receipt, error)

	// HealthCheck probes the channel's availability.
	HealthCheck(ctx context.Context) bool
}
