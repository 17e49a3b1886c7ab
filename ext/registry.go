package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ride"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type rideBroadcastEntry struct {
	name string
	hook RideBroadcast
}

type rideClaimedEntry struct {
	name string
	hook RideClaimed
}

type claimContendedEntry struct {
	name string
	hook ClaimContended
}

type rideAdvancedEntry struct {
	name string
	hook RideAdvanced
}

type rideUnlockedEntry struct {
	name string
	hook RideUnlocked
}

type rideCancelledEntry struct {
	name string
	hook RideCancelled
}

type rideUndeliverableEntry struct {
	name string
	hook RideUndeliverable
}

type modeSwitchedEntry struct {
	name string
	hook ModeSwitched
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	rideBroadcast     []rideBroadcastEntry
	rideClaimed       []rideClaimedEntry
	claimContended    []claimContendedEntry
	rideAdvanced      []rideAdvancedEntry
	rideUnlocked      []rideUnlockedEntry
	rideCancelled     []rideCancelledEntry
	rideUndeliverable []rideUndeliverableEntry
	modeSwitched      []modeSwitchedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RideBroadcast); ok {
		r.rideBroadcast = append(r.rideBroadcast, rideBroadcastEntry{name, h})
	}
	if h, ok := e.(RideClaimed); ok {
		r.rideClaimed = append(r.rideClaimed, rideClaimedEntry{name, h})
	}
	if h, ok := e.(ClaimContended); ok {
		r.claimContended = append(r.claimContended, claimContendedEntry{name, h})
	}
	if h, ok := e.(RideAdvanced); ok {
		r.rideAdvanced = append(r.rideAdvanced, rideAdvancedEntry{name, h})
	}
	if h, ok := e.(RideUnlocked); ok {
		r.rideUnlocked = append(r.rideUnlocked, rideUnlockedEntry{name, h})
	}
	if h, ok := e.(RideCancelled); ok {
		r.rideCancelled = append(r.rideCancelled, rideCancelledEntry{name, h})
	}
	if h, ok := e.(RideUndeliverable); ok {
		r.rideUndeliverable = append(r.rideUndeliverable, rideUndeliverableEntry{name, h})
	}
	if h, ok := e.(ModeSwitched); ok {
		r.modeSwitched = append(r.modeSwitched, modeSwitchedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Ride event emitters
// ──────────────────────────────────────────────────

// EmitRideBroadcast notifies all extensions that implement RideBroadcast.
func (r *Registry) EmitRideBroadcast(ctx context.Context, rd *ride.Ride, channelUsed string) {
	for _, e := range r.rideBroadcast {
		if err := e.hook.OnRideBroadcast(ctx, rd, channelUsed); err != nil {
			r.logHookError("OnRideBroadcast", e.name, err)
		}
	}
}

// EmitRideClaimed notifies all extensions that implement RideClaimed.
func (r *Registry) EmitRideClaimed(ctx context.Context, rd *ride.Ride, d *driver.Driver) {
	for _, e := range r.rideClaimed {
		if err := e.hook.OnRideClaimed(ctx, rd, d); err != nil {
			r.logHookError("OnRideClaimed", e.name, err)
		}
	}
}

// EmitClaimContended notifies all extensions that implement ClaimContended.
func (r *Registry) EmitClaimContended(ctx context.Context, rd *ride.Ride, d *driver.Driver) {
	for _, e := range r.claimContended {
		if err := e.hook.OnClaimContended(ctx, rd, d); err != nil {
			r.logHookError("OnClaimContended", e.name, err)
		}
	}
}

// EmitRideAdvanced notifies all extensions that implement RideAdvanced.
func (r *Registry) EmitRideAdvanced(ctx context.Context, rd *ride.Ride, from ride.Status) {
	for _, e := range r.rideAdvanced {
		if err := e.hook.OnRideAdvanced(ctx, rd, from); err != nil {
			r.logHookError("OnRideAdvanced", e.name, err)
		}
	}
}

// EmitRideUnlocked notifies all extensions that implement RideUnlocked.
func (r *Registry) EmitRideUnlocked(ctx context.Context, rd *ride.Ride) {
	for _, e := range r.rideUnlocked {
		if err := e.hook.OnRideUnlocked(ctx, rd); err != nil {
			r.logHookError("OnRideUnlocked", e.name, err)
		}
	}
}

// EmitRideCancelled notifies all extensions that implement RideCancelled.
func (r *Registry) EmitRideCancelled(ctx context.Context, rd *ride.Ride, actor string) {
	for _, e := range r.rideCancelled {
		if err := e.hook.OnRideCancelled(ctx, rd, actor); err != nil {
			r.logHookError("OnRideCancelled", e.name, err)
		}
	}
}

// EmitRideUndeliverable notifies all extensions that implement RideUndeliverable.
func (r *Registry) EmitRideUndeliverable(ctx context.Context, rd *ride.Ride, deliveryErr error) {
	for _, e := range r.rideUndeliverable {
		if err := e.hook.OnRideUndeliverable(ctx, rd, deliveryErr); err != nil {
			r.logHookError("OnRideUndeliverable", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitModeSwitched notifies all extensions that implement ModeSwitched.
func (r *Registry) EmitModeSwitched(ctx context.Context, from, to string) {
	for _, e := range r.modeSwitched {
		if err := e.hook.OnModeSwitched(ctx, from, to); err != nil {
			r.logHookError("OnModeSwitched", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block dispatch.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
