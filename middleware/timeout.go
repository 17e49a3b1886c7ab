package middleware

import (
	"context"
	"time"

	"github.com/xraph/hail/webhook"
)

// Timeout returns middleware that enforces a processing deadline per
// envelope. Providers retry slow webhooks, so finishing late is worse
// than failing fast: the retry will replay the command anyway.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *webhook.Envelope, next Handler) (*webhook.Reply, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
