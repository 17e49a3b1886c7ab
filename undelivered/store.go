package undelivered

import (
	"context"
	"time"

	"github.com/xraph/hail/id"
)

// ListOpts controls pagination and filtering for entry listings.
type ListOpts struct {
	// IncludeResolved lists handled entries too. Default is open only.
	IncludeResolved bool

	Limit  int
	Offset int
}

// Store is the persistence interface for park entries.
type Store interface {
	// CreateEntry persists a new park entry.
	CreateEntry(ctx context.Context, e *Entry) error

	// GetEntry retrieves an entry by ID. Returns
	// hail.ErrUndeliveredNotFound when absent.
	GetEntry(ctx context.Context, entryID id.UndeliveredID) (*Entry, error)

	// FindEntryByRide returns the open entry for a ride, if any.
	FindEntryByRide(ctx context.Context, rideID id.RideID) (*Entry, error)

	// ResolveEntry marks an entry handled with the given resolution.
	ResolveEntry(ctx context.Context, entryID id.UndeliveredID, resolution string) error

	// ListEntries returns entries, newest first.
	ListEntries(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// CountEntries counts open entries.
	CountEntries(ctx context.Context) (int, error)

	// PurgeEntries removes resolved entries with ResolvedAt before the
	// given time. Open entries are never purged. Returns the number of
	// entries removed.
	PurgeEntries(ctx context.Context, before time.Time) (int64, error)
}
