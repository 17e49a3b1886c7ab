package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/undelivered"
)

// CreateEntry persists a new park entry.
func (s *Store) CreateEntry(ctx context.Context, e *undelivered.Entry) error {
	m := toUndeliveredModel(e)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/sqlite: create undelivered entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.UndeliveredID) (*undelivered.Entry, error) {
	m := new(undeliveredModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/sqlite: get undelivered entry: %w", err)
	}
	return fromUndeliveredModel(m)
}

// FindEntryByRide returns the open entry for a ride, if any.
func (s *Store) FindEntryByRide(ctx context.Context, rideID id.RideID) (*undelivered.Entry, error) {
	m := new(undeliveredModel)
	err := s.sdb.NewSelect(m).
		Where("ride_id = ?", rideID.String()).
		Where("resolved = 0").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/sqlite: find entry by ride: %w", err)
	}
	return fromUndeliveredModel(m)
}

// ResolveEntry marks an entry handled with the given resolution.
func (s *Store) ResolveEntry(ctx context.Context, entryID id.UndeliveredID, resolution string) error {
	now := time.Now().UTC()
	res, err := s.sdb.NewUpdate((*undeliveredModel)(nil)).
		Set("resolved = 1").
		Set("resolved_at = ?", now).
		Set("resolution = ?", resolution).
		Set("updated_at = ?", now).
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/sqlite: resolve undelivered entry: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return hail.ErrUndeliveredNotFound
	}
	return nil
}

// ListEntries returns entries, newest first.
func (s *Store) ListEntries(ctx context.Context, opts undelivered.ListOpts) ([]*undelivered.Entry, error) {
	var models []undeliveredModel
	q := s.sdb.NewSelect(&models).
		OrderExpr("created_at DESC")

	if !opts.IncludeResolved {
		q = q.Where("resolved = 0")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hail/sqlite: list undelivered entries: %w", err)
	}

	entries := make([]*undelivered.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromUndeliveredModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/sqlite: list undelivered convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountEntries counts open entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	count, err := s.sdb.NewSelect((*undeliveredModel)(nil)).
		Where("resolved = 0").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hail/sqlite: count undelivered entries: %w", err)
	}
	return int(count), nil
}

// PurgeEntries removes resolved entries with ResolvedAt before the
// given time.
func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*undeliveredModel)(nil)).
		Where("resolved = 1").
		Where("resolved_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("hail/sqlite: purge undelivered entries: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}
