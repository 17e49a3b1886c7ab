// Package engine wires all Hail subsystems together: the extension
// registry, channel health monitor, dispatch router, claim arbitrator,
// undelivered bookkeeping, and the webhook pipeline.
//
// This package exists to break the import cycle: the root hail package
// defines Entity (imported by ride, driver, etc.) and so cannot import
// those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine
