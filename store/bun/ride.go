package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

// CreateRide persists a new ride in created status.
func (s *Store) CreateRide(ctx context.Context, r *ride.Ride) error {
	m, err := toRideModel(r)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return hail.ErrRideAlreadyExists
		}
		return fmt.Errorf("hail/bun: create ride: %w", err)
	}
	return nil
}

// GetRide retrieves a ride by ID.
func (s *Store) GetRide(ctx context.Context, rideID id.RideID) (*ride.Ride, error) {
	m := new(rideModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", rideID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/bun: get ride: %w", err)
	}
	return fromRideModel(m)
}

// FindRideByToken retrieves the ride bound to a claim token.
func (s *Store) FindRideByToken(ctx context.Context, token string) (*ride.Ride, error) {
	m := new(rideModel)
	err := s.db.NewSelect().Model(m).
		Where("claim_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/bun: find ride by token: %w", err)
	}
	return fromRideModel(m)
}

// FindActiveRideByDriver returns the ride the driver currently holds.
func (s *Store) FindActiveRideByDriver(ctx context.Context, driverID id.DriverID) (*ride.Ride, error) {
	m := new(rideModel)
	err := s.db.NewSelect().Model(m).
		Where("claimant = ?", driverID.String()).
		Where("status IN (?)", bun.In(statusStrings(ride.ActiveStatuses()))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/bun: find active ride: %w", err)
	}
	return fromRideModel(m)
}

// UpdateRide persists non-status changes to an existing ride.
func (s *Store) UpdateRide(ctx context.Context, r *ride.Ride) error {
	m, err := toRideModel(r)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/bun: update ride: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hail.ErrRideNotFound
	}
	return nil
}

// Transition atomically applies patch iff the ride's current status is one
// of expected. The whole read-check-write compiles to a single conditional
// UPDATE ... RETURNING, so concurrent claimants serialize on the row.
func (s *Store) Transition(ctx context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error) {
	m := new(rideModel)
	q := s.db.NewUpdate().Model(m).
		Set("status = ?", string(patch.Status)).
		Set("updated_at = ?", now())

	if patch.Claimant != nil {
		q = q.Set("claimant = ?", patch.Claimant.String())
	}
	if patch.ClearClaimant {
		q = q.Set("claimant = NULL")
	}
	if patch.LockedAt != nil {
		q = q.Set("locked_at = ?", *patch.LockedAt)
	}
	if patch.ClearLockedAt {
		q = q.Set("locked_at = NULL")
	}
	if patch.ClaimToken != nil {
		q = q.Set("claim_token = ?", *patch.ClaimToken)
	}
	if patch.DispatchMethod != nil {
		q = q.Set("dispatch_method = ?", *patch.DispatchMethod)
	}
	if patch.IncrementBroadcast {
		q = q.Set("broadcast_count = broadcast_count + 1")
	}
	if patch.History != nil {
		entry, err := marshalHistory([]ride.HistoryEntry{*patch.History})
		if err != nil {
			return nil, err
		}
		q = q.Set("history = history || ?::jsonb", string(entry))
	}

	_, err := q.
		Where("id = ?", rideID.String()).
		Where("status IN (?)", bun.In(statusStrings(expected))).
		Returning("*").
		Exec(ctx, m)
	if err == nil {
		return fromRideModel(m)
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("hail/bun: transition ride: %w", err)
	}

	// No match: either the ride is gone or another writer moved it out of
	// the expected set first.
	exists, probeErr := s.db.NewSelect().
		TableExpr("hail_rides").
		Where("id = ?", rideID.String()).
		Exists(ctx)
	if probeErr != nil {
		return nil, fmt.Errorf("hail/bun: transition probe: %w", probeErr)
	}
	if !exists {
		return nil, hail.ErrRideNotFound
	}
	return nil, hail.ErrStateConflict
}

// AppendHistory appends one audit entry without a status change.
func (s *Store) AppendHistory(ctx context.Context, rideID id.RideID, entry ride.HistoryEntry) error {
	data, err := marshalHistory([]ride.HistoryEntry{entry})
	if err != nil {
		return err
	}

	res, err := s.db.NewUpdate().
		TableExpr("hail_rides").
		Set("history = history || ?::jsonb", string(data)).
		Set("updated_at = NOW()").
		Where("id = ?", rideID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/bun: append history: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hail.ErrRideNotFound
	}
	return nil
}

// ListRidesByStatus returns rides in the given status, oldest first.
func (s *Store) ListRidesByStatus(ctx context.Context, status ride.Status, opts ride.ListOpts) ([]*ride.Ride, error) {
	var models []rideModel
	q := s.db.NewSelect().Model(&models).
		Where("status = ?", string(status)).
		Order("number ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hail/bun: list rides: %w", err)
	}

	rides := make([]*ride.Ride, 0, len(models))
	for i := range models {
		r, convErr := fromRideModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/bun: list rides convert: %w", convErr)
		}
		rides = append(rides, r)
	}
	return rides, nil
}

// CountRides counts rides matching opts.
func (s *Store) CountRides(ctx context.Context, opts ride.CountOpts) (int, error) {
	q := s.db.NewSelect().TableExpr("hail_rides")
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hail/bun: count rides: %w", err)
	}
	return count, nil
}

// NextRideNumber returns the next sequential display number, backed by an
// atomically incremented counter row.
func (s *Store) NextRideNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.NewRaw(`
		INSERT INTO hail_counters (name, value) VALUES ('ride_number', 1)
		ON CONFLICT (name) DO UPDATE SET value = hail_counters.value + 1
		RETURNING value`,
	).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("hail/bun: next ride number: %w", err)
	}
	return n, nil
}

// statusStrings converts a status slice into its string form for IN filters.
func statusStrings(statuses []ride.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
