package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/hail/webhook"
)

// Dedupe returns middleware that short-circuits repeated deliveries of
// the same provider message ID within the window, replaying the reply
// from the first delivery.
//
// This is an optimization, not a correctness mechanism: every command
// behind the webhook is idempotent on its own. Deduplication just
// spares the stores a round trip on tight retry loops.
func Dedupe(window time.Duration) Middleware {
	type seen struct {
		reply *webhook.Reply
		at    time.Time
	}

	var mu sync.Mutex
	cache := make(map[string]seen)

	return func(ctx context.Context, env *webhook.Envelope, next Handler) (*webhook.Reply, error) {
		if env.MessageID == "" {
			return next(ctx)
		}

		now := time.Now()

		mu.Lock()
		if entry, ok := cache[env.MessageID]; ok && now.Sub(entry.at) < window {
			mu.Unlock()
			return entry.reply, nil
		}
		// Expire stale entries opportunistically.
		for mid, entry := range cache {
			if now.Sub(entry.at) >= window {
				delete(cache, mid)
			}
		}
		mu.Unlock()

		reply, err := next(ctx)
		if err == nil && reply != nil {
			mu.Lock()
			cache[env.MessageID] = seen{reply: reply, at: now}
			mu.Unlock()
		}
		return reply, err
	}
}
