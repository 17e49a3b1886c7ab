// Package ext defines the extension system for Hail.
//
// Extensions are notified of ride lifecycle events and can react to
// them — recording metrics, streaming to dashboards, writing audit
// logs, etc. Each lifecycle hook is a separate interface so extensions
// opt in only to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnRideClaimed(ctx context.Context, rd *ride.Ride, d *driver.Driver) error {
//	    log.Printf("ride %s claimed by %s", rd.ID, d.ID)
//	    return nil
//	}
//
// # Ride Lifecycle Hooks
//
//   - [RideBroadcast] — ride was delivered to the driver pool
//   - [RideClaimed] — a driver won the claim race
//   - [ClaimContended] — a driver lost the claim race
//   - [RideAdvanced] — ride moved forward through the lifecycle
//   - [RideUnlocked] — an operator released a locked ride
//   - [RideCancelled] — ride was cancelled
//   - [RideUndeliverable] — every channel failed to carry the broadcast
//
// # Other Hooks
//
//   - [ModeSwitched] — an operator changed the dispatch mode
//   - [Shutdown] — the coordinator is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged
// and never propagated: extensions cannot block or fail dispatch.
package ext
