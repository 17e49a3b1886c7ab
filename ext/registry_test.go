package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ext"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

// claimWatcher opts in to claim hooks only.
type claimWatcher struct {
	claimed   int
	contended int
}

func (w *claimWatcher) Name() string { return "claim-watcher" }

func (w *claimWatcher) OnRideClaimed(_ context.Context, _ *ride.Ride, _ *driver.Driver) error {
	w.claimed++
	return nil
}

func (w *claimWatcher) OnClaimContended(_ context.Context, _ *ride.Ride, _ *driver.Driver) error {
	w.contended++
	return nil
}

// everythingWatcher counts every event it sees.
type everythingWatcher struct {
	events int
}

func (w *everythingWatcher) Name() string { return "everything-watcher" }

func (w *everythingWatcher) OnRideBroadcast(_ context.Context, _ *ride.Ride, _ string) error {
	w.events++
	return nil
}

func (w *everythingWatcher) OnRideClaimed(_ context.Context, _ *ride.Ride, _ *driver.Driver) error {
	w.events++
	return nil
}

func (w *everythingWatcher) OnRideCancelled(_ context.Context, _ *ride.Ride, _ string) error {
	w.events++
	return nil
}

func (w *everythingWatcher) OnModeSwitched(_ context.Context, _, _ string) error {
	w.events++
	return nil
}

func (w *everythingWatcher) OnShutdown(_ context.Context) error {
	w.events++
	return nil
}

// failingExtension always errors to prove hook errors are swallowed.
type failingExtension struct{}

func (f *failingExtension) Name() string { return "failing" }

func (f *failingExtension) OnRideClaimed(_ context.Context, _ *ride.Ride, _ *driver.Driver) error {
	return errors.New("boom")
}

func sampleRide() *ride.Ride {
	return &ride.Ride{
		Entity: hail.NewEntity(),
		ID:     id.NewRideID(),
		Status: ride.StatusSent,
	}
}

func TestRegistry_DispatchesToImplementedHooksOnly(t *testing.T) {
	t.Parallel()

	reg := ext.NewRegistry(slog.New(slog.DiscardHandler))
	cw := &claimWatcher{}
	ew := &everythingWatcher{}
	reg.Register(cw)
	reg.Register(ew)

	ctx := context.Background()
	rd := sampleRide()
	d := &driver.Driver{ID: id.NewDriverID()}

	reg.EmitRideBroadcast(ctx, rd, "primary")
	reg.EmitRideClaimed(ctx, rd, d)
	reg.EmitClaimContended(ctx, rd, d)
	reg.EmitModeSwitched(ctx, "auto", "secondary-only")
	reg.EmitShutdown(ctx)

	if cw.claimed != 1 || cw.contended != 1 {
		t.Errorf("claimWatcher = %d claimed / %d contended, want 1/1", cw.claimed, cw.contended)
	}
	// everythingWatcher implements broadcast, claimed, mode switch, and
	// shutdown of the events fired, but not contended.
	if ew.events != 4 {
		t.Errorf("everythingWatcher events = %d, want 4", ew.events)
	}
}

func TestRegistry_HookErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	reg := ext.NewRegistry(slog.New(slog.DiscardHandler))
	reg.Register(&failingExtension{})
	cw := &claimWatcher{}
	reg.Register(cw)

	// The failing extension registered first must not stop fan-out.
	reg.EmitRideClaimed(context.Background(), sampleRide(), &driver.Driver{ID: id.NewDriverID()})

	if cw.claimed != 1 {
		t.Errorf("later extension got %d events, want 1", cw.claimed)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	t.Parallel()

	reg := ext.NewRegistry(slog.New(slog.DiscardHandler))
	reg.Register(&claimWatcher{})
	reg.Register(&everythingWatcher{})

	if got := len(reg.Extensions()); got != 2 {
		t.Errorf("extensions = %d, want 2", got)
	}
}
