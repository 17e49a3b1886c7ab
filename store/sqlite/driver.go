package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
)

// GetDriver retrieves a driver by ID.
func (s *Store) GetDriver(ctx context.Context, driverID id.DriverID) (*driver.Driver, error) {
	m := new(driverModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", driverID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/sqlite: get driver: %w", err)
	}
	return fromDriverModel(m)
}

// FindDriverByPhone retrieves a driver by webhook sender address.
func (s *Store) FindDriverByPhone(ctx context.Context, phone string) (*driver.Driver, error) {
	m := new(driverModel)
	err := s.sdb.NewSelect(m).
		Where("phone = ?", phone).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/sqlite: find driver by phone: %w", err)
	}
	return fromDriverModel(m)
}

// UpsertDriver creates or replaces a driver record.
func (s *Store) UpsertDriver(ctx context.Context, d *driver.Driver) error {
	m := toDriverModel(d)
	m.UpdatedAt = time.Now().UTC()

	var models []driverModel
	err := s.sdb.NewRaw(`
		INSERT INTO hail_drivers
			(id, name, phone, is_active, is_blocked, registration_approved,
			 rides_claimed, rides_completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			is_active = excluded.is_active,
			is_blocked = excluded.is_blocked,
			registration_approved = excluded.registration_approved,
			rides_claimed = excluded.rides_claimed,
			rides_completed = excluded.rides_completed,
			updated_at = excluded.updated_at
		RETURNING *`,
		m.ID, m.Name, m.Phone, m.IsActive, m.IsBlocked, m.RegistrationApproved,
		m.RidesClaimed, m.RidesCompleted, m.CreatedAt, m.UpdatedAt,
	).Scan(ctx, &models)
	if err != nil {
		return fmt.Errorf("hail/sqlite: upsert driver: %w", err)
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
		return fmt.Errorf("hail/sqlite: unknown driver stat %q", stat)
	}

	res, err := s.sdb.NewUpdate((*driverModel)(nil)).
		Set(col+" = "+col+" + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", driverID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/sqlite: increment driver stat: %w", err)
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
	err := s.sdb.NewSelect(&models).
		OrderExpr("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hail/sqlite: list drivers: %w", err)
	}

	drivers := make([]*driver.Driver, 0, len(models))
	for i := range models {
		d, convErr := fromDriverModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/sqlite: list drivers convert: %w", convErr)
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}
