package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
)

// GetDriver retrieves a driver by ID.
func (s *Store) GetDriver(ctx context.Context, driverID id.DriverID) (*driver.Driver, error) {
	col := s.mdb.Collection(colDrivers)
	var m driverModel
	err := col.FindOne(ctx, bson.M{"_id": driverID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/mongo: get driver: %w", err)
	}
	return fromDriverModel(&m)
}

// FindDriverByPhone retrieves a driver by webhook sender address.
func (s *Store) FindDriverByPhone(ctx context.Context, phone string) (*driver.Driver, error) {
	col := s.mdb.Collection(colDrivers)
	var m driverModel
	err := col.FindOne(ctx, bson.M{"phone": phone}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, hail.ErrDriverNotFound
		}
		return nil, fmt.Errorf("hail/mongo: find driver by phone: %w", err)
	}
	return fromDriverModel(&m)
}

// UpsertDriver creates or replaces a driver record.
func (s *Store) UpsertDriver(ctx context.Context, d *driver.Driver) error {
	m := toDriverModel(d)
	m.UpdatedAt = now()

	col := s.mdb.Collection(colDrivers)
	opts := options.Replace().SetUpsert(true)
	_, err := col.ReplaceOne(ctx, bson.M{"_id": m.ID}, m, opts)
	if err != nil {
		return fmt.Errorf("hail/mongo: upsert driver: %w", err)
	}
	return nil
}

// IncrementDriverStat bumps one of the driver counters.
func (s *Store) IncrementDriverStat(ctx context.Context, driverID id.DriverID, stat driver.StatDelta) error {
	col := s.mdb.Collection(colDrivers)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": driverID.String()},
		bson.M{
			"$inc": bson.M{string(stat): 1},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return fmt.Errorf("hail/mongo: increment driver stat: %w", err)
	}
	if res.MatchedCount == 0 {
		return hail.ErrDriverNotFound
	}
	return nil
}

// ListDrivers returns all drivers, most recently updated first.
func (s *Store) ListDrivers(ctx context.Context) ([]*driver.Driver, error) {
	col := s.mdb.Collection(colDrivers)
	findOpts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cursor, err := col.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("hail/mongo: list drivers: %w", err)
	}
	defer cursor.Close(ctx)

	var models []driverModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("hail/mongo: list drivers decode: %w", err)
	}

	drivers := make([]*driver.Driver, 0, len(models))
	for i := range models {
		d, convErr := fromDriverModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("hail/mongo: list drivers convert: %w", convErr)
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}
