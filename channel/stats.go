package channel

import (
	"sync"
	"time"
)

// Stats tracks send outcomes for one channel. Counters are best-effort
// shared state behind a plain mutex: races cost precision, never
// dispatch correctness.
type Stats struct {
	mu sync.Mutex

	attempts      int64
	successes     int64
	failures      int64
	lastLatency   time.Duration
	lastCheckedAt time.Time
}

// Snapshot is a read-only copy of a channel's counters.
type Snapshot struct {
	Attempts      int64         `json:"attempts"`
	Successes     int64         `json:"successes"`
	Failures      int64         `json:"failures"`
	LastLatencyMs int64         `json:"last_latency_ms"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
	LastLatency   time.Duration `json:"-"`
}

// RecordAttempt records one send outcome.
func (s *Stats) RecordAttempt(ok bool, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if ok {
		s.successes++
	} else {
		s.failures++
	}
	s.lastLatency = latency
}

// RecordCheck records a health probe timestamp.
func (s *Stats) RecordCheck(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheckedAt = at
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Attempts:      s.attempts,
		Successes:     s.successes,
		Failures:      s.failures,
		LastLatencyMs: s.lastLatency.Milliseconds(),
		LastLatency:   s.lastLatency,
		LastCheckedAt: s.lastCheckedAt,
	}
}

// Reset zeroes the counters. Health flags live in the Monitor and are
// not affected.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = 0
	s.successes = 0
	s.failures = 0
	s.lastLatency = 0
}
