// Package claim implements race arbitration for ride claims.
//
// Many drivers may answer one broadcast, and webhook delivery is
// at-least-once, so the same attempt can arrive twice. The arbitrator
// funnels every attempt through the ride store's conditional Transition,
// which is the only serialization point: exactly one attempt commits the
// claimed transition, every other concurrent attempt observes
// hail.ErrStateConflict and resolves to a loss or an idempotent replay.
// There is no locking here and no ordering assumption between attempts.
package claim

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

// RideStore is the slice of the ride store the arbitrator needs.
type RideStore interface {
	FindRideByToken(ctx context.Context, token string) (*ride.Ride, error)
	GetRide(ctx context.Context, rideID id.RideID) (*ride.Ride, error)
	Transition(ctx context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error)
}

// DriverStore is the slice of the driver store the arbitrator needs.
type DriverStore interface {
	IncrementDriverStat(ctx context.Context, driverID id.DriverID, stat driver.StatDelta) error
}

// Emitter receives post-commit claim notifications. ext.Registry
// satisfies it.
type Emitter interface {
	EmitRideClaimed(ctx context.Context, rd *ride.Ride, d *driver.Driver)
	EmitClaimContended(ctx context.Context, rd *ride.Ride, d *driver.Driver)
}

// Arbitrator resolves claim attempts. Stateless apart from its
// dependencies; safe for concurrent use.
type Arbitrator struct {
	rides   RideStore
	drivers DriverStore
	emitter Emitter
	logger  *slog.Logger
}

// Option configures an Arbitrator.
type Option func(*Arbitrator)

// WithEmitter registers post-commit notification hooks.
func WithEmitter(e Emitter) Option {
	return func(a *Arbitrator) { a.emitter = e }
}

// NewArbitrator creates an Arbitrator over the given stores.
func NewArbitrator(rides RideStore, drivers DriverStore, logger *slog.Logger, opts ...Option) *Arbitrator {
	a := &Arbitrator{
		rides:   rides,
		drivers: drivers,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Claim resolves one claim attempt: the driver presents the token from a
// broadcast and either wins the ride, learns it is gone, or is turned
// away. A non-nil error means infrastructure failure only; every
// race-related resolution is a Result.
//
// Replays are idempotent: a driver re-presenting the token for a ride it
// already holds gets OutcomeWon again with no state change and no
// duplicate side effects.
func (a *Arbitrator) Claim(ctx context.Context, token string, d *driver.Driver) (*Result, error) {
	rd, err := a.rides.FindRideByToken(ctx, token)
	if err != nil {
		if errors.Is(err, hail.ErrRideNotFound) {
			return &Result{Outcome: OutcomeNotFound}, nil
		}
		return nil, fmt.Errorf("hail/claim: token lookup: %w", err)
	}

	// The lookup matched, but verify the binding in constant time so a
	// stale token row can never be mistaken for the live one.
	if subtle.ConstantTimeCompare([]byte(rd.ClaimToken), []byte(token)) != 1 {
		return &Result{Outcome: OutcomeInvalidToken, Ride: rd}, nil
	}

	if reason := d.Eligible(); reason != nil {
		return &Result{Outcome: OutcomeIneligible, Ride: rd, Reason: reason}, nil
	}

	if rd.Claimed() {
		return a.resolveClaimed(ctx, rd, d), nil
	}

	now := time.Now().UTC()
	updated, err := a.rides.Transition(ctx, rd.ID, ride.ClaimableStatuses(), ride.Patch{
		Status:   ride.StatusLocked,
		Claimant: &d.ID,
		LockedAt: &now,
		History: &ride.HistoryEntry{
			Status: ride.StatusLocked,
			Actor:  d.ID.String(),
			Detail: "claimed via " + rd.DispatchMethod,
			At:     now,
		},
	})
	switch {
	case err == nil:
		a.afterWin(ctx, updated, d)
		return &Result{Outcome: OutcomeWon, Ride: updated, Winner: d}, nil

	case errors.Is(err, hail.ErrStateConflict):
		// Lost the race between our read and the transition. Re-read to
		// tell a loss from a concurrent replay of our own attempt.
		current, getErr := a.rides.GetRide(ctx, rd.ID)
		if getErr != nil {
			return nil, fmt.Errorf("hail/claim: re-read after conflict: %w", getErr)
		}
		return a.resolveClaimed(ctx, current, d), nil

	case errors.Is(err, hail.ErrRideNotFound):
		return &Result{Outcome: OutcomeNotFound}, nil

	default:
		return nil, fmt.Errorf("hail/claim: transition: %w", err)
	}
}

// resolveClaimed maps an already-claimed ride to a replay win or a loss.
func (a *Arbitrator) resolveClaimed(ctx context.Context, rd *ride.Ride, d *driver.Driver) *Result {
	if rd.Claimed() && rd.Claimant.String() == d.ID.String() {
		return &Result{Outcome: OutcomeWon, Ride: rd, Replay: true, Winner: d}
	}
	if a.emitter != nil {
		a.emitter.EmitClaimContended(ctx, rd, d)
	}
	return &Result{Outcome: OutcomeAlreadyClaimed, Ride: rd}
}

// afterWin runs the post-commit side effects of a first win. Best
// effort: the claim is already durable, so failures are logged and
// swallowed.
func (a *Arbitrator) afterWin(ctx context.Context, rd *ride.Ride, d *driver.Driver) {
	if err := a.drivers.IncrementDriverStat(ctx, d.ID, driver.StatClaimed); err != nil {
		a.logger.Warn("claim stat increment failed",
			slog.String("driver_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	if a.emitter != nil {
		a.emitter.EmitRideClaimed(ctx, rd, d)
	}
	a.logger.Info("ride claimed",
		slog.String("ride_id", rd.ID.String()),
		slog.Int64("ride_number", rd.Number),
		slog.String("driver_id", d.ID.String()),
	)
}
