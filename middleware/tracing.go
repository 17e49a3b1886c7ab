package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/hail/webhook"
)

// tracerName is the instrumentation scope name for hail tracing.
const tracerName = "github.com/xraph/hail"

// Tracing returns middleware that wraps webhook processing in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: hail.message.id, hail.message.sender,
// hail.message.channel. On error, the span status is set to
// codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, env *webhook.Envelope, next Handler) (*webhook.Reply, error) {
		ctx, span := tracer.Start(ctx, "hail.webhook.handle",
			trace.WithAttributes(
				attribute.String("hail.message.id", env.MessageID),
				attribute.String("hail.message.sender", env.Sender),
				attribute.String("hail.message.channel", env.Channel),
			),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		reply, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return reply, err
	}
}
