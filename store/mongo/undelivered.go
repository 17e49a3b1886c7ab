package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/undelivered"
)

// CreateEntry persists a new park entry.
func (s *Store) CreateEntry(ctx context.Context, e *undelivered.Entry) error {
	m := toUndeliveredModel(e)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/mongo: create undelivered entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.UndeliveredID) (*undelivered.Entry, error) {
	col := s.mdb.Collection(colUndelivered)
	var m undeliveredModel
	err := col.FindOne(ctx, bson.M{"_id": entryID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/mongo: get undelivered entry: %w", err)
	}
	return fromUndeliveredModel(&m)
}

// FindEntryByRide returns the open entry for a ride, if any.
func (s *Store) FindEntryByRide(ctx context.Context, rideID id.RideID) (*undelivered.Entry, error) {
	col := s.mdb.Collection(colUndelivered)
	var m undeliveredModel
	err := col.FindOne(ctx, bson.M{
		"ride_id":  rideID.String(),
		"resolved": false,
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/mongo: find entry by ride: %w", err)
	}
	return fromUndeliveredModel(&m)
}

// ResolveEntry marks an entry handled with the given resolution.
func (s *Store) ResolveEntry(ctx context.Context, entryID id.UndeliveredID, resolution string) error {
	t := now()
	col := s.mdb.Collection(colUndelivered)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": entryID.String()},
		bson.M{"$set": bson.M{
			"resolved":    true,
			"resolved_at": t,
			"resolution":  resolution,
			"updated_at":  t,
		}},
	)
	if err != nil {
		return fmt.Errorf("hail/mongo: resolve undelivered entry: %w", err)
	}
	if res.MatchedCount == 0 {
		return hail.ErrUndeliveredNotFound
	}
	return nil
}

// ListEntries returns entries, newest first.
func (s *Store) ListEntries(ctx context.Context, opts undelivered.ListOpts) ([]*undelivered.Entry, error) {
	col := s.mdb.Collection(colUndelivered)
	filter := bson.M{}
	if !opts.IncludeResolved {
		filter["resolved"] = false
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hail/mongo: list undelivered entries: %w", err)
	}
	defer cursor.Close(ctx)

	var models []undeliveredModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("hail/mongo: list undelivered decode: %w", err)
	}

	entries := make([]*undelivered.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromUndeliveredModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/mongo: list undelivered convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CountEntries counts open entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	col := s.mdb.Collection(colUndelivered)
	count, err := col.CountDocuments(ctx, bson.M{"resolved": false})
	if err != nil {
		return 0, fmt.Errorf("hail/mongo: count undelivered entries: %w", err)
	}
	return int(count), nil
}

// PurgeEntries removes resolved entries with ResolvedAt before the
// given time.
func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	col := s.mdb.Collection(colUndelivered)
	res, err := col.DeleteMany(ctx, bson.M{
		"resolved":    true,
		"resolved_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("hail/mongo: purge undelivered entries: %w", err)
	}
	return res.DeletedCount, nil
}
