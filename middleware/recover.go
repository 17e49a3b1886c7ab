package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/hail/webhook"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace;
// the caller still gets a reply so the sender is never left hanging.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, env *webhook.Envelope, next Handler) (reply *webhook.Reply, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("webhook handler panicked",
					slog.String("message_id", env.MessageID),
					slog.String("sender", env.Sender),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				reply = &webhook.Reply{Text: "Something went wrong on our side. Please try again."}
				retErr = fmt.Errorf("panic handling message %s: %v", env.MessageID, r)
			}
		}()
		return next(ctx)
	}
}
