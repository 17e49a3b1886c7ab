package bunstore

import (
	"context"
	"fmt"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
)

// GetDriver retrieves a driver by ID.
func (s *Store) GetDriver(ctx context.Context, driverID id.DriverID) (*driver.Driver, error) {
	m := new(driverModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", driverID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/bun: get driver: %w", err)
	}
	return fromDriverModel(m)
}

// FindDriverByPhone retrieves a driver by webhook sender address.
func (s *Store) FindDriverByPhone(ctx context.Context, phone string) (*driver.Driver, error) {
	m := new(driverModel)
	err := s.db.NewSelect().Model(m).
		Where("phone = ?", phone).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/bun: find driver by phone: %w", err)
	}
	return fromDriverModel(m)
}

// UpsertDriver creates or replaces a driver record.
func (s *Store) UpsertDriver(ctx context.Context, d *driver.Driver) error {
	m := toDriverModel(d)
	m.UpdatedAt = now()

	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("phone = EXCLUDED.phone").
		Set("is_active = EXCLUDED.is_active").
		Set("is_blocked = EXCLUDED.is_blocked").
		Set("registration_approved = EXCLUDED.registration_approved").
		Set("rides_claimed = EXCLUDED.rides_claimed").
		Set("rides_completed = EXCLUDED.rides_completed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/bun: upsert driver: %w", err)
	}
	return nil
}

// IncrementDriverStat bumps one of the driver counters.
func (s *Store) IncrementDriverStat(ctx context.Context, driverID id.DriverID, stat driver.StatDelta) error {
	var col string
	switch stat {
	case driver.StatClaimed:
		col = "rides_claimed"
	case driver.StatCompleted:
		col = "rides_completed"
	default:
		return fmt.Errorf("hail/bun: unknown driver stat %q", stat)
	}

	res, err := s.db.NewUpdate().
		TableExpr("hail_drivers").
		Set(col + " = " + col + " + 1").
		Set("updated_at = NOW()").
		Where("id = ?", driverID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/bun: increment driver stat: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hail.ErrDriverNotFound
	}
	return nil
}

// ListDrivers returns all drivers, most recently updated first.
func (s *Store) ListDrivers(ctx context.Context) ([]*driver.Driver, error) {
	var models []driverModel
	err := s.db.NewSelect().Model(&models).
		Order("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hail/bun: list drivers: %w", err)
	}

	drivers := make([]*driver.Driver, 0, len(models))
	for i := range models {
		d, convErr := fromDriverModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/bun: list drivers convert: %w", convErr)
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}
