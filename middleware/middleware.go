// Package middleware provides composable middleware for inbound webhook
// processing. Middleware wraps handler calls synchronously and can
// modify execution (recover from panics, deduplicate deliveries, log,
// add tracing, etc.).
package middleware

import (
	"context"

	"github.com/xraph/hail/webhook"
)

// Handler is the terminal function that processes an envelope.
type Handler func(ctx context.Context) (*webhook.Reply, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the envelope being processed, and
// the next handler to call. Middleware MUST call next to continue the
// chain (unless short-circuiting with its own reply).
type Middleware func(ctx context.Context, env *webhook.Envelope, next Handler) (*webhook.Reply, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, dedupe) executes as:
//
//	logging → recover → dedupe → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, env *webhook.Envelope, next Handler) (*webhook.Reply, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (*webhook.Reply, error) {
				return mw(ctx, env, prev)
			}
		}
		return h(ctx)
	}
}

// Wrap binds a composed middleware around a webhook.Handler, producing
// the callable the transport invokes per envelope.
func Wrap(mw Middleware, terminal webhook.Handler) webhook.HandlerFunc {
	return func(ctx context.Context, env *webhook.Envelope) (*webhook.Reply, error) {
		return mw(ctx, env, func(ctx context.Context) (*webhook.Reply, error) {
			return terminal.Handle(ctx, env)
		})
	}
}
