package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/hail/webhook"
)

// meterName is the instrumentation scope name for hail metrics.
const meterName = "github.com/xraph/hail"

// Metrics returns middleware that records per-envelope processing
// metrics using the global OTel MeterProvider. If no MeterProvider is
// configured, noop instruments are used and this middleware becomes a
// pass-through.
//
// Instruments:
//   - hail.webhook.duration (Float64Histogram): processing time in
//     seconds, with attributes: channel, status ("ok" or "error")
//   - hail.webhook.messages (Int64Counter): total messages processed,
//     with attributes: channel, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Create instruments once at middleware construction time.
	// OTel instruments are safe for concurrent use. On error, the API
	// returns noop instruments so the middleware degrades gracefully.
	duration, dErr := meter.Float64Histogram(
		"hail.webhook.duration",
		metric.WithDescription("Duration of webhook processing in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // noop fallback guaranteed by OTel API contract

	messages, mErr := meter.Int64Counter(
		"hail.webhook.messages",
		metric.WithDescription("Total number of webhook messages processed"),
		metric.WithUnit("{message}"),
	)
	_ = mErr // noop fallback guaranteed by OTel API contract

	return func(ctx context.Context, env *webhook.Envelope, next Handler) (*webhook.Reply, error) {
		start := time.Now()
		reply, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("channel", env.Channel),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		messages.Add(ctx, 1, attrs)

		return reply, err
	}
}
