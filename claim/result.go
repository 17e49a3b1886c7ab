package claim

import (
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ride"
)

// Outcome classifies how a claim attempt resolved. Every outcome is a
// normal business result, not an error: losing a race is expected under
// concurrent delivery.
type Outcome string

const (
	// OutcomeWon means the driver holds the ride. Returned both for the
	// first winning attempt and for idempotent replays by the same
	// driver.
	OutcomeWon Outcome = "won"

	// OutcomeAlreadyClaimed means a different driver got there first.
	OutcomeAlreadyClaimed Outcome = "already_claimed"

	// OutcomeNotFound means no ride is bound to the presented token.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeInvalidToken means the token does not match the ride's
	// current claim token (stale broadcast).
	OutcomeInvalidToken Outcome = "invalid_token"

	// OutcomeIneligible means the driver failed an eligibility check.
	// Reason carries which one.
	OutcomeIneligible Outcome = "ineligible"
)

// Result is the resolution of one claim attempt.
type Result struct {
	Outcome Outcome

	// Ride is the ride as of the resolution. Nil for OutcomeNotFound.
	Ride *ride.Ride

	// Replay marks an OutcomeWon that re-acknowledged an earlier win
	// rather than committing a new transition.
	Replay bool

	// Reason is the eligibility failure for OutcomeIneligible
	// (driver.ErrBlocked, driver.ErrInactive, driver.ErrNotApproved).
	Reason error

	// Winner is the driver holding the ride, when known. Set for
	// OutcomeWon; nil otherwise (a loser is only told the ride is gone).
	Winner *driver.Driver
}

// Won reports whether the attempt resulted in the driver holding the
// ride.
func (r *Result) Won() bool {
	return r.Outcome == OutcomeWon
}
