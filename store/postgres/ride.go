package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

const rideColumns = `
	id, number, status, claim_token, claimant, dispatch_method,
	broadcast_count, locked_at, pickup, dropoff, rider_name, rider_contact,
	history, created_at, updated_at`

// CreateRide persists a new ride in created status.
func (s *Store) CreateRide(ctx context.Context, r *ride.Ride) error {
	history, err := marshalHistory(r.History)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO hail_rides (
			id, number, status, claim_token, claimant, dispatch_method,
			broadcast_count, locked_at, pickup, dropoff, rider_name, rider_contact,
			history, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15
		)`,
		r.ID.String(), r.Number, string(r.Status),
		nullable(r.ClaimToken), nullable(r.Claimant.String()), nullable(r.DispatchMethod),
		r.BroadcastCount, r.LockedAt, r.Pickup, r.Dropoff,
		nullable(r.RiderName), nullable(r.RiderContact),
		history, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return hail.ErrRideAlreadyExists
		}
		return fmt.Errorf("hail/postgres: create ride: %w", err)
	}
	return nil
}

// GetRide retrieves a ride by ID.
func (s *Store) GetRide(ctx context.Context, rideID id.RideID) (*ride.Ride, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM hail_rides WHERE id = $1`,
		rideID.String(),
	)

	r, err := scanRide(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/postgres: get ride: %w", err)
	}
	return r, nil
}

// FindRideByToken retrieves the ride bound to a claim token.
func (s *Store) FindRideByToken(ctx context.Context, token string) (*ride.Ride, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM hail_rides WHERE claim_token = $1`,
		token,
	)

	r, err := scanRide(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/postgres: find ride by token: %w", err)
	}
	return r, nil
}

// FindActiveRideByDriver returns the ride the driver currently holds.
func (s *Store) FindActiveRideByDriver(ctx context.Context, driverID id.DriverID) (*ride.Ride, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM hail_rides
		WHERE claimant = $1 AND status = ANY($2)
		LIMIT 1`,
		driverID.String(), statusStrings(ride.ActiveStatuses()),
	)

	r, err := scanRide(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/postgres: find active ride: %w", err)
	}
	return r, nil
}

// UpdateRide persists non-status changes to an existing ride.
func (s *Store) UpdateRide(ctx context.Context, r *ride.Ride) error {
	history, err := marshalHistory(r.History)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE hail_rides SET
			number = $2, status = $3, claim_token = $4, claimant = $5,
			dispatch_method = $6, broadcast_count = $7, locked_at = $8,
			pickup = $9, dropoff = $10, rider_name = $11, rider_contact = $12,
			history = $13, updated_at = NOW()
		WHERE id = $1`,
		r.ID.String(), r.Number, string(r.Status),
		nullable(r.ClaimToken), nullable(r.Claimant.String()),
		nullable(r.DispatchMethod), r.BroadcastCount, r.LockedAt,
		r.Pickup, r.Dropoff, nullable(r.RiderName), nullable(r.RiderContact),
		history,
	)
	if err != nil {
		return fmt.Errorf("hail/postgres: update ride: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hail.ErrRideNotFound
	}
	return nil
}

// Transition atomically applies patch iff the ride's current status is one
// of expected. A single conditional UPDATE ... RETURNING carries the whole
// read-check-write, so concurrent claimants serialize on the row.
func (s *Store) Transition(ctx context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error) {
	sets := []string{"status = $1", "updated_at = NOW()"}
	args := []any{string(patch.Status)}
	n := 2

	addSet := func(column string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, n))
		args = append(args, v)
		n++
	}

	if patch.Claimant != nil {
		addSet("claimant", patch.Claimant.String())
	}
	if patch.ClearClaimant {
		sets = append(sets, "claimant = NULL")
	}
	if patch.LockedAt != nil {
		addSet("locked_at", *patch.LockedAt)
	}
	if patch.ClearLockedAt {
		sets = append(sets, "locked_at = NULL")
	}
	if patch.ClaimToken != nil {
		addSet("claim_token", *patch.ClaimToken)
	}
	if patch.DispatchMethod != nil {
		addSet("dispatch_method", *patch.DispatchMethod)
	}
	if patch.IncrementBroadcast {
		sets = append(sets, "broadcast_count = broadcast_count + 1")
	}
	if patch.History != nil {
		entry, err := marshalHistory([]ride.HistoryEntry{*patch.History})
		if err != nil {
			return nil, err
		}
		sets = append(sets, fmt.Sprintf("history = history || $%d::jsonb", n))
		args = append(args, entry)
		n++
	}

	query := fmt.Sprintf(`
		UPDATE hail_rides
		SET %s
		WHERE id = $%d AND status = ANY($%d)
		RETURNING %s`,
		joinSets(sets), n, n+1, rideColumns,
	)
	args = append(args, rideID.String(), statusStrings(expected))

	row := s.pool.QueryRow(ctx, query, args...)
	r, err := scanRide(row)
	if err == nil {
		return r, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("hail/postgres: transition ride: %w", err)
	}

	// No match: either the ride is gone or another writer moved it out of
	// the expected set first.
	var exists bool
	probeErr := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM hail_rides WHERE id = $1)`,
		rideID.String(),
	).Scan(&exists)
	if probeErr != nil {
		return nil, fmt.Errorf("hail/postgres: transition probe: %w", probeErr)
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

	tag, err := s.pool.Exec(ctx, `
		UPDATE hail_rides
		SET history = history || $2::jsonb, updated_at = NOW()
		WHERE id = $1`,
		rideID.String(), data,
	)
	if err != nil {
		return fmt.Errorf("hail/postgres: append history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hail.ErrRideNotFound
	}
	return nil
}

// ListRidesByStatus returns rides in the given status, oldest first.
func (s *Store) ListRidesByStatus(ctx context.Context, status ride.Status, opts ride.ListOpts) ([]*ride.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM hail_rides WHERE status = $1 ORDER BY number ASC`
	args := []any{string(status)}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hail/postgres: list rides: %w", err)
	}
	defer rows.Close()

	return collectRides(rows)
}

// CountRides counts rides matching opts.
func (s *Store) CountRides(ctx context.Context, opts ride.CountOpts) (int, error) {
	query := `SELECT COUNT(*) FROM hail_rides`
	args := []any{}
	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(opts.Status))
	}

	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("hail/postgres: count rides: %w", err)
	}
	return count, nil
}

// NextRideNumber returns the next sequential display number, backed by an
// atomically incremented counter row.
func (s *Store) NextRideNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO hail_counters (name, value) VALUES ('ride_number', 1)
		ON CONFLICT (name) DO UPDATE SET value = hail_counters.value + 1
		RETURNING value`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("hail/postgres: next ride number: %w", err)
	}
	return n, nil
}

// ── helpers ──────────────────────────────────────────────────────

type historyEntryJSON struct {
	Status string    `json:"status"`
	Actor  string    `json:"actor"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

func marshalHistory(entries []ride.HistoryEntry) ([]byte, error) {
	models := make([]historyEntryJSON, len(entries))
	for i, h := range entries {
		models[i] = historyEntryJSON{
			Status: string(h.Status),
			Actor:  h.Actor,
			Detail: h.Detail,
			At:     h.At,
		}
	}
	data, err := json.Marshal(models)
	if err != nil {
		return nil, fmt.Errorf("hail/postgres: marshal history: %w", err)
	}
	return data, nil
}

func unmarshalHistory(data []byte) ([]ride.HistoryEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var models []historyEntryJSON
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("hail/postgres: unmarshal history: %w", err)
	}
	entries := make([]ride.HistoryEntry, len(models))
	for i, m := range models {
		entries[i] = ride.HistoryEntry{
			Status: ride.Status(m.Status),
			Actor:  m.Actor,
			Detail: m.Detail,
			At:     m.At,
		}
	}
	return entries, nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*ride.Ride, error) {
	var (
		rawID, status, pickup, dropoff                          string
		claimToken, claimant, dispatchMethod, riderN, riderC    *string
		number                                                  int64
		broadcastCount                                          int
		lockedAt                                                *time.Time
		historyData                                             []byte
		createdAt, updatedAt                                    time.Time
	)

	err := row.Scan(
		&rawID, &number, &status, &claimToken, &claimant, &dispatchMethod,
		&broadcastCount, &lockedAt, &pickup, &dropoff, &riderN, &riderC,
		&historyData, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseRideID(rawID)
	if err != nil {
		return nil, fmt.Errorf("hail/postgres: parse ride id %q: %w", rawID, err)
	}

	history, err := unmarshalHistory(historyData)
	if err != nil {
		return nil, err
	}

	r := &ride.Ride{
		Entity: hail.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:             parsedID,
		Number:         number,
		Status:         ride.Status(status),
		ClaimToken:     deref(claimToken),
		DispatchMethod: deref(dispatchMethod),
		BroadcastCount: broadcastCount,
		LockedAt:       lockedAt,
		Pickup:         pickup,
		Dropoff:        dropoff,
		RiderName:      deref(riderN),
		RiderContact:   deref(riderC),
		History:        history,
	}

	if claimant != nil && *claimant != "" {
		parsedClaimant, cErr := id.ParseDriverID(*claimant)
		if cErr == nil {
			r.Claimant = parsedClaimant
		}
	}

	return r, nil
}

func collectRides(rows pgx.Rows) ([]*ride.Ride, error) {
	var rides []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("hail/postgres: scan ride: %w", err)
		}
		rides = append(rides, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hail/postgres: iterate rides: %w", err)
	}
	return rides, nil
}

func statusStrings(statuses []ride.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
