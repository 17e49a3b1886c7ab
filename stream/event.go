// Package stream provides a real-time event broker for Hail lifecycle events.
// It bridges the ext.Extension system to connected clients via topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Ride events.
	EventRideBroadcast     EventType = "ride.broadcast"
	EventRideClaimed       EventType = "ride.claimed"
	EventClaimContended    EventType = "ride.claim_contended"
	EventRideAdvanced      EventType = "ride.advanced"
	EventRideUnlocked      EventType = "ride.unlocked"
	EventRideCancelled     EventType = "ride.cancelled"
	EventRideUndeliverable EventType = "ride.undeliverable"

	// Dispatch events.
	EventModeSwitched EventType = "dispatch.mode_switched"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// RideEventData is the payload for ride lifecycle events.
type RideEventData struct {
	RideID      string `json:"ride_id"`
	RideNumber  int64  `json:"ride_number"`
	Status      string `json:"status"`
	DriverID    string `json:"driver_id,omitempty"`
	ChannelUsed string `json:"channel_used,omitempty"`
	FromStatus  string `json:"from_status,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ModeEventData is the payload for dispatch mode events.
type ModeEventData struct {
	From string `json:"from"`
	To   string `json:"to"`
}
