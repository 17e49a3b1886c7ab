// Package backoff provides the bounded retry policy used by the dispatch
// router. Policies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy is an explicit bounded retry policy: a maximum attempt count
// and a delay curve. The zero value is unusable; construct via New or
// Default.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Initial is the delay before the first retry.
	Initial time.Duration

	// Multiplier scales the delay per attempt. 2 doubles it each time.
	Multiplier float64

	// Cap bounds a single delay. Zero means uncapped.
	Cap time.Duration

	// Jitter, when set, draws the actual delay uniformly from
	// [0, computed delay] to avoid synchronized retries.
	Jitter bool
}

// New returns an exponential policy with the given attempt budget.
func New(maxAttempts int, initial, cap time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Initial:     initial,
		Multiplier:  2,
		Cap:         cap,
	}
}

// Default is the router's standard policy: 3 attempts, 500ms doubling,
// capped at 5s, with jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Initial:     500 * time.Millisecond,
		Multiplier:  2,
		Cap:         5 * time.Second,
		Jitter:      true,
	}
}

// Delay returns how long to wait before retry attempt n (1-indexed).
// Attempt 1 is the first retry after the initial failure.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}

	d := float64(p.Initial) * math.Pow(mult, float64(attempt-1))
	if p.Cap > 0 && d > float64(p.Cap) {
		d = float64(p.Cap)
	}

	if p.Jitter {
		d = rand.Float64() * d //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return time.Duration(d)
}

// Exhausted reports whether the attempt budget is spent after the given
// number of completed attempts.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
