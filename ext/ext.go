package ext

import (
	"context"

	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ride"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Ride lifecycle hooks
// ──────────────────────────────────────────────────

// RideBroadcast is called after a ride is successfully delivered to the
// driver pool. channelUsed names the channel that carried it.
type RideBroadcast interface {
	OnRideBroadcast(ctx context.Context, rd *ride.Ride, channelUsed string) error
}

// RideClaimed is called after a driver wins the claim race. Fires once
// per win; idempotent replays do not re-fire it.
type RideClaimed interface {
	OnRideClaimed(ctx context.Context, rd *ride.Ride, d *driver.Driver) error
}

// ClaimContended is called when a driver loses the claim race. d is the
// losing driver.
type ClaimContended interface {
	OnClaimContended(ctx context.Context, rd *ride.Ride, d *driver.Driver) error
}

// RideAdvanced is called after a ride moves forward through the
// lifecycle (confirm, enroute, arrived, finished, commission paid).
type RideAdvanced interface {
	OnRideAdvanced(ctx context.Context, rd *ride.Ride, from ride.Status) error
}

// RideUnlocked is called after an operator releases a locked ride back
// to the open pool.
type RideUnlocked interface {
	OnRideUnlocked(ctx context.Context, rd *ride.Ride) error
}

// RideCancelled is called after a ride is cancelled. actor identifies
// who cancelled it (a driver ID or operator name).
type RideCancelled interface {
	OnRideCancelled(ctx context.Context, rd *ride.Ride, actor string) error
}

// RideUndeliverable is called when every outbound channel failed to
// carry the broadcast and the ride was parked.
type RideUndeliverable interface {
	OnRideUndeliverable(ctx context.Context, rd *ride.Ride, deliveryErr error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ModeSwitched is called when an operator changes the dispatch mode.
type ModeSwitched interface {
	OnModeSwitched(ctx context.Context, from, to string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
