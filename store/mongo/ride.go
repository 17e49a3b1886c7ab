package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

// CreateRide persists a new ride in created status.
func (s *Store) CreateRide(ctx context.Context, r *ride.Ride) error {
	m := toRideModel(r)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return hail.ErrRideAlreadyExists
		}
		return fmt.Errorf("hail/mongo: create ride: %w", err)
	}
	return nil
}

// GetRide retrieves a ride by ID.
func (s *Store) GetRide(ctx context.Context, rideID id.RideID) (*ride.Ride, error) {
	col := s.mdb.Collection(colRides)
	var m rideModel
	err := col.FindOne(ctx, bson.M{"_id": rideID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/mongo: get ride: %w", err)
	}
	return fromRideModel(&m)
}

// FindRideByToken retrieves the ride bound to a claim token.
func (s *Store) FindRideByToken(ctx context.Context, token string) (*ride.Ride, error) {
	col := s.mdb.Collection(colRides)
	var m rideModel
	err := col.FindOne(ctx, bson.M{"claim_token": token}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/mongo: find ride by token: %w", err)
	}
	return fromRideModel(&m)
}

// FindActiveRideByDriver returns the ride the driver currently holds.
func (s *Store) FindActiveRideByDriver(ctx context.Context, driverID id.DriverID) (*ride.Ride, error) {
	active := ride.ActiveStatuses()
	statuses := make([]string, len(active))
	for i, st := range active {
		statuses[i] = string(st)
	}

	col := s.mdb.Collection(colRides)
	var m rideModel
	err := col.FindOne(ctx, bson.M{
		"claimant": driverID.String(),
		"status":   bson.M{"$in": statuses},
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/mongo: find active ride: %w", err)
	}
	return fromRideModel(&m)
}

// UpdateRide persists non-status changes to an existing ride.
func (s *Store) UpdateRide(ctx context.Context, r *ride.Ride) error {
	m := toRideModel(r)
	m.UpdatedAt = now()
	col := s.mdb.Collection(colRides)
	res, err := col.ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("hail/mongo: update ride: %w", err)
	}
	if res.MatchedCount == 0 {
		return hail.ErrRideNotFound
	}
	return nil
}

// Transition atomically applies patch iff the ride's current status is
// one of expected. A single FindOneAndUpdate carries the whole
// read-check-write, so concurrent claimants serialize on the document.
func (s *Store) Transition(ctx context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error) {
	statuses := make([]string, len(expected))
	for i, st := range expected {
		statuses[i] = string(st)
	}

	set := bson.M{
		"status":     string(patch.Status),
		"updated_at": now(),
	}
	unset := bson.M{}

	if patch.Claimant != nil {
		set["claimant"] = patch.Claimant.String()
	}
	if patch.ClearClaimant {
		unset["claimant"] = ""
	}
	if patch.LockedAt != nil {
		set["locked_at"] = *patch.LockedAt
	}
	if patch.ClearLockedAt {
		unset["locked_at"] = ""
	}
	if patch.ClaimToken != nil {
		set["claim_token"] = *patch.ClaimToken
	}
	if patch.DispatchMethod != nil {
		set["dispatch_method"] = *patch.DispatchMethod
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if patch.IncrementBroadcast {
		update["$inc"] = bson.M{"broadcast_count": 1}
	}
	if patch.History != nil {
		update["$push"] = bson.M{"history": toHistoryModel(*patch.History)}
	}

	filter := bson.M{
		"_id":    rideID.String(),
		"status": bson.M{"$in": statuses},
	}

	col := s.mdb.Collection(colRides)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m rideModel
	err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err == nil {
		return fromRideModel(&m)
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("hail/mongo: transition ride: %w", err)
	}

	// No match: either the ride is gone or another writer moved it out
	// of the expected set first.
	var probe rideModel
	probeErr := col.FindOne(ctx, bson.M{"_id": rideID.String()}).Decode(&probe)
	if probeErr != nil {
		if isNoDocuments(probeErr) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/mongo: transition probe: %w", probeErr)
	}
	return nil, hail.ErrStateConflict
}

// AppendHistory appends one audit entry without a status change.
func (s *Store) AppendHistory(ctx context.Context, rideID id.RideID, entry ride.HistoryEntry) error {
	col := s.mdb.Collection(colRides)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": rideID.String()},
		bson.M{
			"$push": bson.M{"history": toHistoryModel(entry)},
			"$set":  bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return fmt.Errorf("hail/mongo: append history: %w", err)
	}
	if res.MatchedCount == 0 {
		return hail.ErrRideNotFound
	}
	return nil
}

// ListRidesByStatus returns rides in the given status, oldest first.
func (s *Store) ListRidesByStatus(ctx context.Context, status ride.Status, opts ride.ListOpts) ([]*ride.Ride, error) {
	col := s.mdb.Collection(colRides)
	filter := bson.M{"status": string(status)}

	findOpts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hail/mongo: list rides: %w", err)
	}
	defer cursor.Close(ctx)

	var models []rideModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("hail/mongo: list rides decode: %w", err)
	}

	rides := make([]*ride.Ride, 0, len(models))
	for i := range models {
		r, convErr := fromRideModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/mongo: list rides convert: %w", convErr)
		}
		rides = append(rides, r)
	}
	return rides, nil
}

// CountRides counts rides matching opts.
func (s *Store) CountRides(ctx context.Context, opts ride.CountOpts) (int, error) {
	col := s.mdb.Collection(colRides)
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	count, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("hail/mongo: count rides: %w", err)
	}
	return int(count), nil
}

// NextRideNumber returns the next sequential display number, backed by
// an atomically incremented counter document.
func (s *Store) NextRideNumber(ctx context.Context) (int64, error) {
	col := s.mdb.Collection(colCounters)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		Value int64 `bson:"value"`
	}
	err := col.FindOneAndUpdate(ctx,
		bson.M{"_id": "ride_number"},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("hail/mongo: next ride number: %w", err)
	}
	return doc.Value, nil
}
