package hail

import (
	"context"
	"log/slog"
)

// Option configures a Coordinator.
type Option func(*Coordinator) error

// Storer is the minimal store interface held by the Coordinator.
// It covers lifecycle operations only. The full composite interface
// (store.Store) is used in subsystem layers that don't create import
// cycles. Implementations satisfy store.Store which embeds all
// subsystem stores.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// monitorRunner is an internal interface for the health monitor lifecycle.
type monitorRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Coordinator is the central lifecycle holder for the dispatch system.
//
// Create one with New() and functional options. The Coordinator holds
// references to the store and health monitor via internal interfaces to
// avoid import cycles. Use engine.Build to wire the router, arbitrator,
// and extensions on top of it.
type Coordinator struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	monitor    monitorRunner

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Coordinator with the given options.
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Logger returns the coordinator's logger.
func (c *Coordinator) Logger() *slog.Logger { return c.logger }

// Store returns the coordinator's store.
func (c *Coordinator) Store() Storer { return c.store }

// Config returns a copy of the coordinator's configuration.
func (c *Coordinator) Config() Config { return c.config }

// SetMonitor sets the health monitor (called by the engine package).
func (c *Coordinator) SetMonitor(m monitorRunner) { c.monitor = m }

// SetExtensions sets the extension emitter (called by the engine package).
func (c *Coordinator) SetExtensions(e extensionEmitter) { c.extensions = e }

// Start begins health monitoring.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}
	if c.monitor != nil {
		if err := c.monitor.Start(ctx); err != nil {
			return err
		}
	}
	c.started = true
	return nil
}

// Stop gracefully shuts down the coordinator.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.monitor != nil && c.started {
		if err := c.monitor.Stop(ctx); err != nil {
			c.logger.Error("monitor stop error", "error", err)
		}
	}
	if c.extensions != nil {
		c.extensions.EmitShutdown(ctx)
	}
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) error {
		c.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = l
		return nil
	}
}

// WithStore sets the persistence backend for the coordinator.
// The store must implement Storer at minimum; typically it will be a
// store.Store which embeds all subsystem store interfaces.
func WithStore(s Storer) Option {
	return func(c *Coordinator) error {
		c.store = s
		return nil
	}
}
