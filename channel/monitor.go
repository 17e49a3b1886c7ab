package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// entry pairs a channel with its monitor-owned state.
type entry struct {
	ch    Channel
	stats *Stats

	mu      sync.Mutex
	healthy bool
	// probing guards against overlapping probes of the same channel;
	// while one is in flight, readers use the last known flag.
	probing bool
}

// Monitor maintains a rolling health flag per channel. It probes every
// channel on a fixed interval, and re-probes a channel immediately when
// the router reports a failed send. Probing never blocks dispatch or
// claim handling; IsHealthy always answers from the last known flag.
//
// Health is in-memory only and rebuilt by probing after restart.
type Monitor struct {
	entries  map[string]*entry
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithProbeInterval sets how often every channel is probed.
func WithProbeInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// NewMonitor creates a Monitor for the given channels. Channels start
// healthy; the first probe corrects the flag if the provider disagrees.
func NewMonitor(logger *slog.Logger, channels []Channel, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		entries:  make(map[string]*entry, len(channels)),
		interval: 30 * time.Second,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	for _, ch := range channels {
		m.entries[ch.Name()] = &entry{ch: ch, stats: &Stats{}, healthy: true}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the periodic probe loop. It returns immediately.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.running = true

	m.logger.Info("channel monitor starting",
		slog.Int("channels", len(m.entries)),
		slog.Duration("interval", m.interval),
	)

	m.wg.Add(1)
	go m.probeLoop(ctx)
	return nil
}

// Stop halts the probe loop and waits for in-flight probes.
func (m *Monitor) Stop(_ context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("channel monitor stopped")
	return nil
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

// probeAll probes every channel concurrently. Each probe updates only
// its own entry, so a hanging provider delays nothing but its own flag.
func (m *Monitor) probeAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for name := range m.entries {
		g.Go(func() error {
			m.probe(gctx, name)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probes never return errors
}

// probe runs one health check and updates the flag. Skips silently when
// another probe of the same channel is in flight.
func (m *Monitor) probe(ctx context.Context, name string) {
	e, ok := m.entries[name]
	if !ok {
		return
	}

	e.mu.Lock()
	if e.probing {
		e.mu.Unlock()
		return
	}
	e.probing = true
	was := e.healthy
	e.mu.Unlock()

	healthy := e.ch.HealthCheck(ctx)
	now := time.Now().UTC()
	e.stats.RecordCheck(now)

	e.mu.Lock()
	e.healthy = healthy
	e.probing = false
	e.mu.Unlock()

	if healthy != was {
		m.logger.Warn("channel health changed",
			slog.String("channel", name),
			slog.Bool("healthy", healthy),
		)
	}
}

// IsHealthy returns the last known health flag for the channel.
// Unknown channels are unhealthy.
func (m *Monitor) IsHealthy(name string) bool {
	e, ok := m.entries[name]
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

// ForceCheck probes one channel synchronously and returns the fresh
// flag. Used by the operator diagnostic endpoint.
func (m *Monitor) ForceCheck(ctx context.Context, name string) bool {
	m.probe(ctx, name)
	return m.IsHealthy(name)
}

// ForceCheckAll probes every channel synchronously and returns the
// resulting flags by channel name.
func (m *Monitor) ForceCheckAll(ctx context.Context) map[string]bool {
	m.probeAll(ctx)

	out := make(map[string]bool, len(m.entries))
	for name := range m.entries {
		out[name] = m.IsHealthy(name)
	}
	return out
}

// ReportFailure is called by the router after a failed send to
// accelerate detection: it flips the flag down immediately and schedules
// a fresh asynchronous probe to confirm.
func (m *Monitor) ReportFailure(name string) {
	e, ok := m.entries[name]
	if !ok {
		return
	}

	e.mu.Lock()
	e.healthy = false
	e.mu.Unlock()

	// Add must not race with the Wait in Stop, so the confirm probe is
	// only spawned while the monitor is running.
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.probe(ctx, name)
	}()
}

// Stats returns the stats collector for a channel, or nil when unknown.
func (m *Monitor) Stats(name string) *Stats {
	e, ok := m.entries[name]
	if !ok {
		return nil
	}
	return e.stats
}

// Snapshots returns a stats snapshot per channel, keyed by name.
func (m *Monitor) Snapshots() map[string]Snapshot {
	out := make(map[string]Snapshot, len(m.entries))
	for name, e := range m.entries {
		out[name] = e.stats.Snapshot()
	}
	return out
}

// ResetStats zeroes every channel's counters. Health flags are not
// affected.
func (m *Monitor) ResetStats() {
	for _, e := range m.entries {
		e.stats.Reset()
	}
}
