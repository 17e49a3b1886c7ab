package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/undelivered"
)

// Collection name constants.
const (
	colRides       = "hail_rides"
	colDrivers     = "hail_drivers"
	colUndelivered = "hail_undelivered"
	colCounters    = "hail_counters"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ ride.Store        = (*Store)(nil)
	_ driver.Store      = (*Store)(nil)
	_ undelivered.Store = (*Store)(nil)
)

// Store is a grove ORM implementation of store.Store using MongoDB driver.
// The caller owns the *grove.DB lifecycle; Store never closes it.
type Store struct {
	db     *grove.DB
	mdb    *mongodriver.MongoDB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store. The caller owns the db lifecycle -- the
// Store will not close it on Close().
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		mdb:    mongodriver.Unwrap(db),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *grove.DB for advanced usage.
func (s *Store) DB() *grove.DB {
	return s.db
}

// Migrate creates indexes for all hail collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}

		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("hail/mongo: migrate %s indexes: %w", col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close is a no-op because the caller owns the *grove.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}

// migrationIndexes returns the index definitions for all hail collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRides: {
			// Claim lookup: one document per live token.
			{
				Keys:    bson.D{{Key: "claim_token", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			// Status listings.
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "number", Value: 1},
			}},
			// Active-ride-per-driver lookup.
			{Keys: bson.D{
				{Key: "claimant", Value: 1},
				{Key: "status", Value: 1},
			}},
			// Display number.
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colDrivers: {
			// Webhook sender resolution.
			{
				Keys:    bson.D{{Key: "phone", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		},
		colUndelivered: {
			// One open entry per ride.
			{Keys: bson.D{
				{Key: "ride_id", Value: 1},
				{Key: "resolved", Value: 1},
			}},
			// Operator listings, newest first.
			{Keys: bson.D{
				{Key: "resolved", Value: 1},
				{Key: "created_at", Value: -1},
			}},
		},
	}
}
