package ride

import (
	"context"
	"time"

	"github.com/xraph/hail/id"
)

// Patch describes the fields a conditional Transition sets. Only non-nil
// (or explicitly flagged) fields are written; everything is applied in
// the same atomic operation as the status change.
type Patch struct {
	// Status is the target status. Required.
	Status Status

	// Claimant sets the claimant when non-nil.
	Claimant *id.DriverID
	// ClearClaimant clears the claimant (unlock).
	ClearClaimant bool

	// LockedAt sets the lock timestamp when non-nil.
	LockedAt *time.Time
	// ClearLockedAt clears the lock timestamp.
	ClearLockedAt bool

	// ClaimToken replaces the claim token when non-nil (rebroadcast).
	ClaimToken *string

	// DispatchMethod records the channel that delivered the broadcast.
	DispatchMethod *string

	// IncrementBroadcast bumps BroadcastCount by one.
	IncrementBroadcast bool

	// History is appended atomically with the transition. Every
	// committed transition must carry exactly one entry.
	History *HistoryEntry
}

// ListOpts controls pagination for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}

// CountOpts filters count operations.
type CountOpts struct {
	Status Status
}

// Store is the persistence interface for rides.
//
// Transition is the single serialization point of the whole system: it
// must apply the patch only if the ride's current status is in the
// expected set, as one indivisible operation with serializable
// visibility. When the condition does not hold it returns
// hail.ErrStateConflict and changes nothing. Claim arbitration relies on
// this — there is no application-level locking anywhere.
type Store interface {
	// CreateRide persists a new ride in created status.
	CreateRide(ctx context.Context, r *Ride) error

	// GetRide retrieves a ride by ID. Returns hail.ErrRideNotFound when
	// absent.
	GetRide(ctx context.Context, rideID id.RideID) (*Ride, error)

	// FindRideByToken retrieves the ride bound to a claim token.
	FindRideByToken(ctx context.Context, token string) (*Ride, error)

	// FindActiveRideByDriver returns the ride the driver currently
	// holds (locked or later, not yet settled or cancelled). Returns
	// hail.ErrRideNotFound when the driver holds nothing.
	FindActiveRideByDriver(ctx context.Context, driverID id.DriverID) (*Ride, error)

	// UpdateRide persists non-status changes to an existing ride.
	// Status changes must go through Transition.
	UpdateRide(ctx context.Context, r *Ride) error

	// Transition atomically applies patch iff the ride's current status
	// is one of expected. Returns the updated ride, hail.ErrRideNotFound
	// when the ride does not exist, or hail.ErrStateConflict when the
	// condition failed because another writer got there first.
	Transition(ctx context.Context, rideID id.RideID, expected []Status, patch Patch) (*Ride, error)

	// AppendHistory appends one audit entry without a status change.
	AppendHistory(ctx context.Context, rideID id.RideID, entry HistoryEntry) error

	// ListRidesByStatus returns rides in the given status, oldest first.
	ListRidesByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Ride, error)

	// CountRides counts rides matching opts.
	CountRides(ctx context.Context, opts CountOpts) (int, error)

	// NextRideNumber returns the next sequential display number.
	NextRideNumber(ctx context.Context) (int64, error)
}
