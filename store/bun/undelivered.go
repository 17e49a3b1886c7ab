package bunstore

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
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/bun: create undelivered entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.UndeliveredID) (*undelivered.Entry, error) {
	m := new(undeliveredModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/bun: get undelivered entry: %w", err)
	}
	return fromUndeliveredModel(m)
}

// FindEntryByRide returns the open entry for a ride, if any.
func (s *Store) FindEntryByRide(ctx context.Context, rideID id.RideID) (*undelivered.Entry, error) {
	m := new(undeliveredModel)
	err := s.db.NewSelect().Model(m).
		Where("ride_id = ?", rideID.String()).
		Where("resolved = FALSE").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/bun: find entry by ride: %w", err)
	}
	return fromUndeliveredModel(m)
}

// ResolveEntry marks an entry handled with the given resolution.
func (s *Store) ResolveEntry(ctx context.Context, entryID id.UndeliveredID, resolution string) error {
	res, err := s.db.NewUpdate().
		TableExpr("hail_undelivered").
		Set("resolved = TRUE").
		Set("resolved_at = NOW()").
		Set("resolution = ?", resolution).
		Set("updated_at = NOW()").
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/bun: resolve undelivered entry: %w", err)
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
	q := s.db.NewSelect().Model(&models).
		Order("created_at DESC")

	if !opts.IncludeResolved {
		q = q.Where("resolved = FALSE")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("hail/bun: list undelivered entries: %w", err)
	}

	entries := make([]*undelivered.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromUndeliveredModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/bun: list undelivered convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountEntries counts open entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().
		TableExpr("hail_undelivered").
		Where("resolved = FALSE").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("hail/bun: count undelivered entries: %w", err)
	}
	return count, nil
}

// PurgeEntries removes resolved entries with ResolvedAt before the
// given time.
func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("hail_undelivered").
		Where("resolved = TRUE").
		Where("resolved_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("hail/bun: purge undelivered entries: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}
