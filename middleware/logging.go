package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/hail/webhook"
)

// Logging returns middleware that logs envelope receipt and resolution.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, env *webhook.Envelope, next Handler) (*webhook.Reply, error) {
		logger.Info("webhook received",
			slog.String("message_id", env.MessageID),
			slog.String("sender", env.Sender),
			slog.String("channel", env.Channel),
		)

		start := time.Now()
		reply, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("webhook failed",
				slog.String("message_id", env.MessageID),
				slog.String("sender", env.Sender),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("webhook handled",
				slog.String("message_id", env.MessageID),
				slog.String("sender", env.Sender),
				slog.Duration("elapsed", elapsed),
			)
		}

		return reply, err
	}
}
