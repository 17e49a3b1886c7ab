package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/undelivered"
)

const undeliveredColumns = `
	id, ride_id, ride_number, reason, channel_tried, attempts,
	resolved, resolved_at, resolution, created_at, updated_at`

// CreateEntry persists a new park entry.
func (s *Store) CreateEntry(ctx context.Context, e *undelivered.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hail_undelivered (
			id, ride_id, ride_number, reason, channel_tried, attempts,
			resolved, resolved_at, resolution, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`,
		e.ID.String(), e.RideID.String(), e.RideNumber, e.Reason,
		nullable(e.ChannelTried), e.Attempts, e.Resolved, e.ResolvedAt,
		nullable(e.Resolution), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("hail/postgres: create undelivered entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.UndeliveredID) (*undelivered.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+undeliveredColumns+` FROM hail_undelivered WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/postgres: get undelivered entry: %w", err)
	}
	return e, nil
}

// FindEntryByRide returns the open entry for a ride, if any.
func (s *Store) FindEntryByRide(ctx context.Context, rideID id.RideID) (*undelivered.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+undeliveredColumns+` FROM hail_undelivered
		WHERE ride_id = $1 AND resolved = FALSE
		LIMIT 1`,
		rideID.String(),
	)

	e, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/postgres: find entry by ride: %w", err)
	}
	return e, nil
}

// ResolveEntry marks an entry handled with the given resolution.
func (s *Store) ResolveEntry(ctx context.Context, entryID id.UndeliveredID, resolution string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE hail_undelivered
		SET resolved = TRUE, resolved_at = NOW(), resolution = $2, updated_at = NOW()
		WHERE id = $1`,
		entryID.String(), resolution,
	)
	if err != nil {
		return fmt.Errorf("hail/postgres: resolve undelivered entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hail.ErrUndeliveredNotFound
	}
	return nil
}

// ListEntries returns entries, newest first.
func (s *Store) ListEntries(ctx context.Context, opts undelivered.ListOpts) ([]*undelivered.Entry, error) {
	query := `SELECT ` + undeliveredColumns + ` FROM hail_undelivered`
	args := []any{}
	if !opts.IncludeResolved {
		query += ` WHERE resolved = FALSE`
	}
	query += ` ORDER BY created_at DESC`
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
		return nil, fmt.Errorf("hail/postgres: list undelivered entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// CountEntries counts open entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM hail_undelivered WHERE resolved = FALSE`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("hail/postgres: count undelivered entries: %w", err)
	}
	return count, nil
}

// PurgeEntries removes resolved entries with ResolvedAt before the
// given time.
func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM hail_undelivered WHERE resolved = TRUE AND resolved_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("hail/postgres: purge undelivered entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ── helpers ──────────────────────────────────────────────────────

func scanEntry(row rowScanner) (*undelivered.Entry, error) {
	var (
		rawID, rawRideID, reason  string
		channelTried, resolution  *string
		rideNumber                int64
		attempts                  int
		resolved                  bool
		resolvedAt                *time.Time
		createdAt, updatedAt      time.Time
	)

	err := row.Scan(
		&rawID, &rawRideID, &rideNumber, &reason, &channelTried, &attempts,
		&resolved, &resolvedAt, &resolution, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseUndeliveredID(rawID)
	if err != nil {
		return nil, fmt.Errorf("hail/postgres: parse undelivered id %q: %w", rawID, err)
	}
	parsedRideID, err := id.ParseRideID(rawRideID)
	if err != nil {
		return nil, fmt.Errorf("hail/postgres: parse ride id %q: %w", rawRideID, err)
	}

	return &undelivered.Entry{
		Entity: hail.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           parsedID,
		RideID:       parsedRideID,
		RideNumber:   rideNumber,
		Reason:       reason,
		ChannelTried: deref(channelTried),
		Attempts:     attempts,
		Resolved:     resolved,
		ResolvedAt:   resolvedAt,
		Resolution:   deref(resolution),
	}, nil
}

func collectEntries(rows pgx.Rows) ([]*undelivered.Entry, error) {
	var entries []*undelivered.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("hail/postgres: scan undelivered entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hail/postgres: iterate undelivered entries: %w", err)
	}
	return entries, nil
}
