// Package observability provides the metrics extension for Hail. The
// MetricsExtension implements lifecycle hooks to record system-wide
// counters for broadcasts, claims, contention, lifecycle advances,
// cancellations, undeliverable parks, and mode switches.
//
// For per-message tracing and metrics on the webhook path, see the
// middleware package: middleware.Tracing() and middleware.Metrics().
package observability
