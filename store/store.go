package store

import (
	"context"

	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/undelivered"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (mongo, bun, redis, memory) implements all of them.
type Store interface {
	ride.Store
	driver.Store
	undelivered.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
