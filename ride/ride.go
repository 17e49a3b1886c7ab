package ride

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
)

// Status represents the lifecycle state of a ride.
type Status string

const (
	// StatusCreated means the ride exists but has not been broadcast.
	StatusCreated Status = "created"
	// StatusSent means the ride was broadcast to the driver pool and is
	// open for claims.
	StatusSent Status = "sent"
	// StatusLocked means a driver won the claim race; the ride is held
	// exclusively but not yet confirmed.
	StatusLocked Status = "locked"
	// StatusAssigned means the locking driver confirmed the ride.
	StatusAssigned Status = "assigned"
	// StatusEnroute means the driver is on the way to the pickup point.
	StatusEnroute Status = "enroute"
	// StatusArrived means the driver reached the pickup point.
	StatusArrived Status = "arrived"
	// StatusFinished means the ride was completed.
	StatusFinished Status = "finished"
	// StatusCommissionPaid means the driver settled the commission.
	// Terminal.
	StatusCommissionPaid Status = "commission_paid"
	// StatusCancelled means the ride was cancelled. Terminal.
	StatusCancelled Status = "cancelled"
	// StatusUndeliverable means every outbound channel failed to carry
	// the broadcast. The ride is parked until redispatch.
	StatusUndeliverable Status = "undeliverable"
)

// HistoryEntry is one row of a ride's append-only audit trail. Entries
// are only ever appended, never mutated.
type HistoryEntry struct {
	Status Status    `json:"status"`
	Actor  string    `json:"actor"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Ride represents a unit of dispatchable work broadcast to drivers.
type Ride struct {
	hail.Entity

	ID     id.RideID `json:"id"`
	Number int64     `json:"number"`
	Status Status    `json:"status"`

	// ClaimToken is a one-time unguessable secret bound to the ride at
	// broadcast time. A claim attempt must present it to prove it is
	// answering this broadcast and not a stale or unrelated message.
	ClaimToken string `json:"claim_token,omitempty"`

	// Claimant is the driver holding the ride. Empty until claimed;
	// non-empty iff Status is locked or later in the lifecycle.
	Claimant id.DriverID `json:"claimant,omitempty"`

	// DispatchMethod is the channel that last successfully delivered
	// the broadcast.
	DispatchMethod string `json:"dispatch_method,omitempty"`

	// BroadcastCount is how many times the ride has been (re)broadcast.
	BroadcastCount int `json:"broadcast_count"`

	LockedAt *time.Time `json:"locked_at,omitempty"`

	Pickup       string `json:"pickup"`
	Dropoff      string `json:"dropoff"`
	RiderName    string `json:"rider_name,omitempty"`
	RiderContact string `json:"rider_contact,omitempty"`

	History []HistoryEntry `json:"history"`
}

// Claimed reports whether the ride's status implies a claimant.
func (r *Ride) Claimed() bool {
	return ClaimedOrLater(r.Status)
}

// NewClaimToken returns a fresh unguessable claim token.
func NewClaimToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("ride: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
