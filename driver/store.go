package driver

import (
	"context"

	"github.com/xraph/hail/id"
)

// StatDelta names a driver counter to increment.
type StatDelta string

const (
	StatClaimed   StatDelta = "rides_claimed"
	StatCompleted StatDelta = "rides_completed"
)

// Store is the persistence interface for drivers.
type Store interface {
	// GetDriver retrieves a driver by ID. Returns hail.ErrDriverNotFound
	// when absent.
	GetDriver(ctx context.Context, driverID id.DriverID) (*Driver, error)

	// FindDriverByPhone retrieves a driver by webhook sender address.
	FindDriverByPhone(ctx context.Context, phone string) (*Driver, error)

	// UpsertDriver creates or replaces a driver record.
	UpsertDriver(ctx context.Context, d *Driver) error

	// IncrementDriverStat bumps one of the driver counters. Best-effort
	// post-commit side effect: failures must not affect a committed
	// claim.
	IncrementDriverStat(ctx context.Context, driverID id.DriverID, stat StatDelta) error

	// ListDrivers returns all drivers, most recently updated first.
	ListDrivers(ctx context.Context) ([]*Driver, error)
}
