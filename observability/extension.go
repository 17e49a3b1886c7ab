package observability

import (
	"context"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ext"
	"github.com/xraph/hail/ride"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.RideBroadcast     = (*MetricsExtension)(nil)
	_ ext.RideClaimed       = (*MetricsExtension)(nil)
	_ ext.ClaimContended    = (*MetricsExtension)(nil)
	_ ext.RideAdvanced      = (*MetricsExtension)(nil)
	_ ext.RideUnlocked      = (*MetricsExtension)(nil)
	_ ext.RideCancelled     = (*MetricsExtension)(nil)
	_ ext.RideUndeliverable = (*MetricsExtension)(nil)
	_ ext.ModeSwitched      = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via go-utils
// MetricFactory. Register it as a Hail extension to automatically track
// broadcast rates, claim wins, contention, lifecycle progress,
// cancellations, parks, and operator mode switches.
type MetricsExtension struct {
	RideBroadcast     gu.Counter
	RideClaimed       gu.Counter
	ClaimContended    gu.Counter
	RideAdvanced      gu.Counter
	RideUnlocked      gu.Counter
	RideCancelled     gu.Counter
	RideUndeliverable gu.Counter
	ModeSwitched      gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("hail/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided
// MetricFactory. Use fapp.Metrics() in forge extensions, or
// gu.NewMetricsCollector for testing.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		RideBroadcast:     factory.Counter("hail.ride.broadcast"),
		RideClaimed:       factory.Counter("hail.ride.claimed"),
		ClaimContended:    factory.Counter("hail.claim.contended"),
		RideAdvanced:      factory.Counter("hail.ride.advanced"),
		RideUnlocked:      factory.Counter("hail.ride.unlocked"),
		RideCancelled:     factory.Counter("hail.ride.cancelled"),
		RideUndeliverable: factory.Counter("hail.ride.undeliverable"),
		ModeSwitched:      factory.Counter("hail.dispatch.mode_switched"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Ride lifecycle hooks ────────────────────────────

// OnRideBroadcast implements ext.RideBroadcast.
func (m *MetricsExtension) OnRideBroadcast(_ context.Context, _ *ride.Ride, _ string) error {
	m.RideBroadcast.Inc()
	return nil
}

// OnRideClaimed implements ext.RideClaimed.
func (m *MetricsExtension) OnRideClaimed(_ context.Context, _ *ride.Ride, _ *driver.Driver) error {
	m.RideClaimed.Inc()
	return nil
}

// OnClaimContended implements ext.ClaimContended.
func (m *MetricsExtension) OnClaimContended(_ context.Context, _ *ride.Ride, _ *driver.Driver) error {
	m.ClaimContended.Inc()
	return nil
}

// OnRideAdvanced implements ext.RideAdvanced.
func (m *MetricsExtension) OnRideAdvanced(_ context.Context, _ *ride.Ride, _ ride.Status) error {
	m.RideAdvanced.Inc()
	return nil
}

// OnRideUnlocked implements ext.RideUnlocked.
func (m *MetricsExtension) OnRideUnlocked(_ context.Context, _ *ride.Ride) error {
	m.RideUnlocked.Inc()
	return nil
}

// OnRideCancelled implements ext.RideCancelled.
func (m *MetricsExtension) OnRideCancelled(_ context.Context, _ *ride.Ride, _ string) error {
	m.RideCancelled.Inc()
	return nil
}

// OnRideUndeliverable implements ext.RideUndeliverable.
func (m *MetricsExtension) OnRideUndeliverable(_ context.Context, _ *ride.Ride, _ error) error {
	m.RideUndeliverable.Inc()
	return nil
}

// ── Dispatch hooks ──────────────────────────────────

// OnModeSwitched implements ext.ModeSwitched.
func (m *MetricsExtension) OnModeSwitched(_ context.Context, _, _ string) error {
	m.ModeSwitched.Inc()
	return nil
}
