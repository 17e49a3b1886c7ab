package undelivered

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

// Service records and resolves park entries. Redispatching itself lives
// with the engine, which owns broadcasting; the service only tracks the
// bookkeeping around it.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a park service over the given store.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Park records a delivery failure for a ride. Idempotent per ride: if an
// open entry already exists it is kept and returned unchanged, so a
// rebroadcast that fails again does not stack entries.
func (s *Service) Park(ctx context.Context, rd *ride.Ride, channelTried string, attempts int, deliveryErr error) (*Entry, error) {
	if existing, err := s.store.FindEntryByRide(ctx, rd.ID); err == nil && existing != nil {
		return existing, nil
	}

	e := &Entry{
		Entity:       hail.NewEntity(),
		ID:           id.NewUndeliveredID(),
		RideID:       rd.ID,
		RideNumber:   rd.Number,
		Reason:       deliveryErr.Error(),
		ChannelTried: channelTried,
		Attempts:     attempts,
	}

	if err := s.store.CreateEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("hail/undelivered: park ride %s: %w", rd.ID, err)
	}

	s.logger.Warn("ride parked as undeliverable",
		slog.String("ride_id", rd.ID.String()),
		slog.Int64("ride_number", rd.Number),
		slog.String("reason", e.Reason),
		slog.Int("attempts", attempts),
	)
	return e, nil
}

// Resolve marks an entry handled.
func (s *Service) Resolve(ctx context.Context, entryID id.UndeliveredID, resolution string) error {
	if err := s.store.ResolveEntry(ctx, entryID, resolution); err != nil {
		return fmt.Errorf("hail/undelivered: resolve %s: %w", entryID, err)
	}
	s.logger.Info("park entry resolved",
		slog.String("entry_id", entryID.String()),
		slog.String("resolution", resolution),
	)
	return nil
}

// Get retrieves one entry.
func (s *Service) Get(ctx context.Context, entryID id.UndeliveredID) (*Entry, error) {
	return s.store.GetEntry(ctx, entryID)
}

// Find retrieves the entry for a ride, if any. Returns
// hail.ErrUndeliveredNotFound when the ride was never parked.
func (s *Service) Find(ctx context.Context, rideID id.RideID) (*Entry, error) {
	return s.store.FindEntryByRide(ctx, rideID)
}

// List returns park entries, newest first.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return s.store.ListEntries(ctx, opts)
}

// OpenCount returns the number of unhandled entries.
func (s *Service) OpenCount(ctx context.Context) (int, error) {
	return s.store.CountEntries(ctx)
}

// Purge removes resolved entries older than the given cutoff. Open
// entries are never purged.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.store.PurgeEntries(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("hail/undelivered: purge: %w", err)
	}
	if n > 0 {
		s.logger.Info("park entries purged",
			slog.Int64("count", n),
			slog.Time("before", before),
		)
	}
	return n, nil
}
