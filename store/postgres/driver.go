package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
)

const driverColumns = `
	id, name, phone, is_active, is_blocked, registration_approved,
	rides_claimed, rides_completed, created_at, updated_at`

// GetDriver retrieves a driver by ID.
func (s *Store) GetDriver(ctx context.Context, driverID id.DriverID) (*driver.Driver, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+driverColumns+` FROM hail_drivers WHERE id = $1`,
		driverID.String(),
	)

	d, err := scanDriver(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/postgres: get driver: %w", err)
	}
	return d, nil
}

// FindDriverByPhone retrieves a driver by webhook sender address.
func (s *Store) FindDriverByPhone(ctx context.Context, phone string) (*driver.Driver, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+driverColumns+` FROM hail_drivers WHERE phone = $1`,
		phone,
	)

	d, err := scanDriver(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/postgres: find driver by phone: %w", err)
	}
	return d, nil
}

// UpsertDriver creates or replaces a driver record.
func (s *Store) UpsertDriver(ctx context.Context, d *driver.Driver) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hail_drivers (
			id, name, phone, is_active, is_blocked, registration_approved,
			rides_claimed, rides_completed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			is_active = EXCLUDED.is_active,
			is_blocked = EXCLUDED.is_blocked,
			registration_approved = EXCLUDED.registration_approved,
			rides_claimed = EXCLUDED.rides_claimed,
			rides_completed = EXCLUDED.rides_completed,
			updated_at = EXCLUDED.updated_at`,
		d.ID.String(), d.Name, d.Phone, d.IsActive, d.IsBlocked,
		d.RegistrationApproved, d.RidesClaimed, d.RidesCompleted,
		d.CreatedAt, now(),
	)
	if err != nil {
		return fmt.Errorf("hail/postgres: upsert driver: %w", err)
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
		return fmt.Errorf("hail/postgres: unknown driver stat %q", stat)
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE hail_drivers SET %s = %s + 1, updated_at = NOW() WHERE id = $1`, col, col),
		driverID.String(),
	)
	if err != nil {
		return fmt.Errorf("hail/postgres: increment driver stat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hail.ErrDriverNotFound
	}
	return nil
}

// ListDrivers returns all drivers, most recently updated first.
func (s *Store) ListDrivers(ctx context.Context) ([]*driver.Driver, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+driverColumns+` FROM hail_drivers ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("hail/postgres: list drivers: %w", err)
	}
	defer rows.Close()

	return collectDrivers(rows)
}

// ── helpers ──────────────────────────────────────────────────────

func scanDriver(row rowScanner) (*driver.Driver, error) {
	var (
		rawID, name, phone             string
		isActive, isBlocked, approved  bool
		ridesClaimed, ridesCompleted   int
		createdAt, updatedAt           time.Time
	)

	err := row.Scan(
		&rawID, &name, &phone, &isActive, &isBlocked, &approved,
		&ridesClaimed, &ridesCompleted, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseDriverID(rawID)
	if err != nil {
		return nil, fmt.Errorf("hail/postgres: parse driver id %q: %w", rawID, err)
	}

	return &driver.Driver{
		Entity: hail.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:                   parsedID,
		Name:                 name,
		Phone:                phone,
		IsActive:             isActive,
		IsBlocked:            isBlocked,
		RegistrationApproved: approved,
		RidesClaimed:         ridesClaimed,
		RidesCompleted:       ridesCompleted,
	}, nil
}

func collectDrivers(rows pgx.Rows) ([]*driver.Driver, error) {
	var drivers []*driver.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("hail/postgres: scan driver: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hail/postgres: iterate drivers: %w", err)
	}
	return drivers, nil
}
