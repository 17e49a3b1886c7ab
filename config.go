package hail

import "time"

// Config holds configuration for the Coordinator.
type Config struct {
	// ProbeInterval is how often the channel health monitor probes each
	// outbound channel.
	ProbeInterval time.Duration

	// SendTimeout is the per-attempt deadline for one channel send.
	SendTimeout time.Duration

	// MaxSendAttempts is the number of attempts against the chosen
	// channel before the router considers it exhausted.
	MaxSendAttempts int

	// BackoffInitial is the delay before the first retry. Doubles per
	// attempt, capped at BackoffCap.
	BackoffInitial time.Duration

	// BackoffCap is the upper bound on a single retry delay.
	BackoffCap time.Duration

	// LockTTL is how long a ride may sit in the locked state before an
	// unlock returns it to the pool. Zero disables automatic unlock.
	LockTTL time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:   30 * time.Second,
		SendTimeout:     10 * time.Second,
		MaxSendAttempts: 3,
		BackoffInitial:  500 * time.Millisecond,
		BackoffCap:      5 * time.Second,
		LockTTL:         2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}
