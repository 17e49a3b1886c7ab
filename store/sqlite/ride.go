package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

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
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return hail.ErrRideAlreadyExists
		}
		return fmt.Errorf("hail/sqlite: create ride: %w", err)
	}
	return nil
}

// GetRide retrieves a ride by ID.
func (s *Store) GetRide(ctx context.Context, rideID id.RideID) (*ride.Ride, error) {
	m := new(rideModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", rideID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/sqlite: get ride: %w", err)
	}
	return fromRideModel(m)
}

// FindRideByToken retrieves the ride bound to a claim token.
func (s *Store) FindRideByToken(ctx context.Context, token string) (*ride.Ride, error) {
	m := new(rideModel)
	err := s.sdb.NewSelect(m).
		Where("claim_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/sqlite: find ride by token: %w", err)
	}
	return fromRideModel(m)
}

// FindActiveRideByDriver returns the ride the driver currently holds.
func (s *Store) FindActiveRideByDriver(ctx context.Context, driverID id.DriverID) (*ride.Ride, error) {
	active := ride.ActiveStatuses()
	placeholders := make([]string, len(active))
	args := []any{driverID.String()}
	for i, st := range active {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	m := new(rideModel)
	err := s.sdb.NewSelect(m).
		Where("claimant = ?", args[0]).
		Where(fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")), args[1:]...).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/sqlite: find active ride: %w", err)
	}
	return fromRideModel(m)
}

// UpdateRide persists non-status changes to an existing ride.
func (s *Store) UpdateRide(ctx context.Context, r *ride.Ride) error {
	m, err := toRideModel(r)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/sqlite: update ride: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hail.ErrRideNotFound
	}
	return nil
}

// Transition atomically applies patch iff the ride's current status is one
// of expected. SQLite serializes writers, so the conditional UPDATE with
// RETURNING carries the whole read-check-write.
func (s *Store) Transition(ctx context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(patch.Status), time.Now().UTC()}

	if patch.Claimant != nil {
		sets = append(sets, "claimant = ?")
		args = append(args, patch.Claimant.String())
	}
	if patch.ClearClaimant {
		sets = append(sets, "claimant = NULL")
	}
	if patch.LockedAt != nil {
		sets = append(sets, "locked_at = ?")
		args = append(args, *patch.LockedAt)
	}
	if patch.ClearLockedAt {
		sets = append(sets, "locked_at = NULL")
	}
	if patch.ClaimToken != nil {
		sets = append(sets, "claim_token = ?")
		args = append(args, *patch.ClaimToken)
	}
	if patch.DispatchMethod != nil {
		sets = append(sets, "dispatch_method = ?")
		args = append(args, *patch.DispatchMethod)
	}
	if patch.IncrementBroadcast {
		sets = append(sets, "broadcast_count = broadcast_count + 1")
	}
	if patch.History != nil {
		entry, err := json.Marshal(historyModel{
			Status: string(patch.History.Status),
			Actor:  patch.History.Actor,
			Detail: patch.History.Detail,
			At:     patch.History.At,
		})
		if err != nil {
			return nil, fmt.Errorf("hail/sqlite: marshal history entry: %w", err)
		}
		sets = append(sets, "history = json_insert(history, '$[#]', json(?))")
		args = append(args, string(entry))
	}

	placeholders := make([]string, len(expected))
	args = append(args, rideID.String())
	for i, st := range expected {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`
		UPDATE hail_rides
		SET %s
		WHERE id = ? AND status IN (%s)
		RETURNING *`,
		strings.Join(sets, ", "),
		strings.Join(placeholders, ","),
	)

	var models []rideModel
	err := s.sdb.NewRaw(query, args...).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("hail/sqlite: transition ride: %w", err)
	}
	if len(models) > 0 {
		return fromRideModel(&models[0])
	}

	// No match: either the ride is gone or another writer moved it out of
	// the expected set first.
	count, probeErr := s.sdb.NewSelect((*rideModel)(nil)).
		Where("id = ?", rideID.String()).
		Count(ctx)
	if probeErr != nil {
		return nil, fmt.Errorf("hail/sqlite: transition probe: %w", probeErr)
	}
	if count == 0 {
		return nil, hail.ErrRideNotFound
	}
	return nil, hail.ErrStateConflict
}

// AppendHistory appends one audit entry without a status change.
func (s *Store) AppendHistory(ctx context.Context, rideID id.RideID, entry ride.HistoryEntry) error {
	data, err := json.Marshal(historyModel{
		Status: string(entry.Status),
		Actor:  entry.Actor,
		Detail: entry.Detail,
		At:     entry.At,
	})
	if err != nil {
		return fmt.Errorf("hail/sqlite: marshal history entry: %w", err)
	}

	res, err := s.sdb.NewUpdate((*rideModel)(nil)).
		Set("history = json_insert(history, '$[#]', json(?))", string(data)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", rideID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/sqlite: append history: %w", err)
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
	q := s.sdb.NewSelect(&models).
		Where("status = ?", string(status)).
		OrderExpr("number ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hail/sqlite: list rides: %w", err)
	}

	rides := make([]*ride.Ride, 0, len(models))
	for i := range models {
		r, convErr := fromRideModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/sqlite: list rides convert: %w", convErr)
		}
		rides = append(rides, r)
	}
	return rides, nil
}

// CountRides counts rides matching opts.
func (s *Store) CountRides(ctx context.Context, opts ride.CountOpts) (int, error) {
	q := s.sdb.NewSelect((*rideModel)(nil))
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hail/sqlite: count rides: %w", err)
	}
	return int(count), nil
}

// NextRideNumber returns the next sequential display number, backed by an
// atomically incremented counter row.
func (s *Store) NextRideNumber(ctx context.Context) (int64, error) {
	var models []counterModel
	err := s.sdb.NewRaw(`
		INSERT INTO hail_counters (name, value) VALUES ('ride_number', 1)
		ON CONFLICT (name) DO UPDATE SET value = value + 1
		RETURNING *`,
	).Scan(ctx, &models)
	if err != nil {
		return 0, fmt.Errorf("hail/sqlite: next ride number: %w", err)
	}
	if len(models) == 0 {
		return 0, fmt.Errorf("hail/sqlite: next ride number: no row returned")
	}
	return models[0].Value, nil
}
