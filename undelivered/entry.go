// Package undelivered parks rides that no outbound channel could carry.
//
// When the dispatch router exhausts every channel, the ride is marked
// undeliverable and a park entry records why. Parked rides sit here
// until an operator redispatches them; nothing is dropped silently.
package undelivered

import (
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
)

// Entry is one parked ride with the failure that parked it.
type Entry struct {
	hail.Entity

	ID     id.UndeliveredID `json:"id"`
	RideID id.RideID        `json:"ride_id"`

	// RideNumber is denormalized for operator listings.
	RideNumber int64 `json:"ride_number"`

	// Reason is the final delivery error, verbatim.
	Reason string `json:"reason"`

	// ChannelTried is the last channel that attempted delivery.
	ChannelTried string `json:"channel_tried,omitempty"`

	// Attempts is the total send attempts across all channels.
	Attempts int `json:"attempts"`

	// Resolved marks the entry as handled (redispatched or cancelled).
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// Resolution records how the entry was handled.
	Resolution string `json:"resolution,omitempty"`
}

// Resolutions.
const (
	ResolutionRedispatched = "redispatched"
	ResolutionCancelled    = "cancelled"
)
