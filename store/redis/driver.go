package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
)

// GetDriver retrieves a driver by ID.
func (s *Store) GetDriver(ctx context.Context, driverID id.DriverID) (*driver.Driver, error) {
	return s.getDriverByKey(ctx, driverKey(driverID.String()))
}

// FindDriverByPhone retrieves a driver by webhook sender address via the
// phone index.
func (s *Store) FindDriverByPhone(ctx context.Context, phone string) (*driver.Driver, error) {
	dID, err := s.client.HGet(ctx, phonesKey, phone).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/redis: find driver by phone: %w", err)
	}
	return s.getDriverByKey(ctx, driverKey(dID))
}

// UpsertDriver creates or replaces a driver record, maintaining the phone
// index when the number changes.
func (s *Store) UpsertDriver(ctx context.Context, d *driver.Driver) error {
	dID := d.ID.String()
	key := driverKey(dID)

	oldPhone, err := s.client.HGet(ctx, key, "phone").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("hail/redis: upsert driver get phone: %w", err)
	}

	fields := driverToMap(d)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, driverIDsKey, dID)
	if oldPhone != d.Phone {
		if oldPhone != "" {
			pipe.HDel(ctx, phonesKey, oldPhone)
		}
		pipe.HSet(ctx, phonesKey, d.Phone, dID)
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/redis: upsert driver: %w", err)
	}
	return nil
}

// IncrementDriverStat bumps one of the driver counters.
func (s *Store) IncrementDriverStat(ctx context.Context, driverID id.DriverID, stat driver.StatDelta) error {
	switch stat {
	case driver.StatClaimed, driver.StatCompleted:
	default:
		return fmt.Errorf("hail/redis: unknown driver stat %q", stat)
	}

	key := driverKey(driverID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hail/redis: increment stat exists: %w", err)
	}
	if exists == 0 {
		return hail.ErrDriverNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, string(stat), 1)
	pipe.HSet(ctx, key, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/redis: increment driver stat: %w", err)
	}
	return nil
}

// ListDrivers returns all drivers, most recently updated first.
func (s *Store) ListDrivers(ctx context.Context) ([]*driver.Driver, error) {
	ids, err := s.client.SMembers(ctx, driverIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hail/redis: list drivers smembers: %w", err)
	}

	drivers := make([]*driver.Driver, 0, len(ids))
	for _, dID := range ids {
		d, getErr := s.getDriverByKey(ctx, driverKey(dID))
		if getErr != nil {
			continue // skip missing
		}
		drivers = append(drivers, d)
	}

	sort.Slice(drivers, func(i, j int) bool {
		return drivers[i].UpdatedAt.After(drivers[j].UpdatedAt)
	})
	return drivers, nil
}

// ── helpers ──

func (s *Store) getDriverByKey(ctx context.Context, key string) (*driver.Driver, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hail/redis: get driver: %w", err)
	}
	if len(vals) == 0 {
		return nil, hail.ErrDriverNotFound
	}
	return mapToDriver(vals)
}

func driverToMap(d *driver.Driver) map[string]interface{} {
	return map[string]interface{}{
		"id":                    d.ID.String(),
		"name":                  d.Name,
		"phone":                 d.Phone,
		"is_active":             strconv.FormatBool(d.IsActive),
		"is_blocked":            strconv.FormatBool(d.IsBlocked),
		"registration_approved": strconv.FormatBool(d.RegistrationApproved),
		"rides_claimed":         strconv.Itoa(d.RidesClaimed),
		"rides_completed":       strconv.Itoa(d.RidesCompleted),
		"created_at":            d.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":            d.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToDriver(m map[string]string) (*driver.Driver, error) {
	dID, err := id.ParseDriverID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("hail/redis: parse driver id: %w", err)
	}

	isActive, _ := strconv.ParseBool(m["is_active"])              //nolint:errcheck // best-effort parse from trusted Redis data
	isBlocked, _ := strconv.ParseBool(m["is_blocked"])            //nolint:errcheck // best-effort parse from trusted Redis data
	approved, _ := strconv.ParseBool(m["registration_approved"])  //nolint:errcheck // best-effort parse from trusted Redis data
	claimed, _ := strconv.Atoi(m["rides_claimed"])                //nolint:errcheck // best-effort parse from trusted Redis data
	completed, _ := strconv.Atoi(m["rides_completed"])            //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &driver.Driver{
		Entity: hail.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:                   dID,
		Name:                 m["name"],
		Phone:                m["phone"],
		IsActive:             isActive,
		IsBlocked:            isBlocked,
		RegistrationApproved: approved,
		RidesClaimed:         claimed,
		RidesCompleted:       completed,
	}, nil
}
