package ride

import (
	"fmt"

	"github.com/xraph/hail"
)

// Event names a lifecycle trigger. Events arrive from drivers (via the
// webhook), operators (via the API), or the dispatch router.
type Event string

const (
	// EventBroadcast marks the ride as sent to the driver pool.
	EventBroadcast Event = "broadcast"
	// EventClaim is a driver's attempt to take exclusive ownership.
	EventClaim Event = "claim"
	// EventConfirm is the locking driver confirming the ride.
	EventConfirm Event = "confirm"
	// EventAdvance moves a claimed ride one step forward
	// (assigned → enroute → arrived → finished).
	EventAdvance Event = "advance"
	// EventPayCommission settles the driver commission after finish.
	EventPayCommission Event = "pay_commission"
	// EventCancel cancels the ride from any non-terminal state.
	EventCancel Event = "cancel"
	// EventUnlock reverts a locked ride to sent, clearing the claimant.
	EventUnlock Event = "unlock"
	// EventUndeliverable parks a ride whose broadcast exhausted all
	// channels.
	EventUndeliverable Event = "undeliverable"
)

// transitions is the closed transition table. A (from, event) pair absent
// from the table is illegal; there is no other path between statuses.
var transitions = map[Status]map[Event]Status{
	StatusCreated: {
		EventBroadcast:     StatusSent,
		EventClaim:         StatusLocked,
		EventCancel:        StatusCancelled,
		EventUndeliverable: StatusUndeliverable,
	},
	StatusSent: {
		// Rebroadcast of an unclaimed ride stays in sent.
		EventBroadcast: StatusSent,
		EventClaim:     StatusLocked,
		EventCancel:    StatusCancelled,
	},
	StatusLocked: {
		EventConfirm: StatusAssigned,
		EventUnlock:  StatusSent,
		EventCancel:  StatusCancelled,
	},
	StatusAssigned: {
		EventAdvance: StatusEnroute,
		EventCancel:  StatusCancelled,
	},
	StatusEnroute: {
		EventAdvance: StatusArrived,
		EventCancel:  StatusCancelled,
	},
	StatusArrived: {
		EventAdvance: StatusFinished,
		EventCancel:  StatusCancelled,
	},
	StatusFinished: {
		EventPayCommission: StatusCommissionPaid,
	},
	StatusUndeliverable: {
		EventBroadcast: StatusSent,
		EventCancel:    StatusCancelled,
	},
}

// Next returns the status reached by applying event in the given status.
// Returns hail.ErrInvalidTransition when the table has no matching row;
// callers translate that into a "status not accepted" reply, never a
// transport-level error.
func Next(from Status, event Event) (Status, error) {
	row, ok := transitions[from]
	if !ok {
		return "", fmt.Errorf("%w: no transitions from %q", hail.ErrInvalidTransition, from)
	}
	to, ok := row[event]
	if !ok {
		return "", fmt.Errorf("%w: %q not accepted in %q", hail.ErrInvalidTransition, event, from)
	}
	return to, nil
}

// Allowed reports whether event is legal in the given status.
func Allowed(from Status, event Event) bool {
	_, err := Next(from, event)
	return err == nil
}

// ClaimableStatuses are the statuses from which a claim may succeed.
// This slice is the expected-status set of the arbitrator's conditional
// transition.
func ClaimableStatuses() []Status {
	return []Status{StatusCreated, StatusSent}
}

// BroadcastableStatuses are the statuses from which a (re)broadcast may
// be attempted.
func BroadcastableStatuses() []Status {
	return []Status{StatusCreated, StatusSent, StatusUndeliverable}
}

// ActiveStatuses are the statuses in which a driver holds the ride and
// may act on it.
func ActiveStatuses() []Status {
	return []Status{StatusLocked, StatusAssigned, StatusEnroute,
		StatusArrived, StatusFinished}
}

// ForwardEvent returns the event that moves a driver-held ride one step
// forward from the given status: confirm from locked, advance through
// the trip, commission settlement after finish.
func ForwardEvent(s Status) (Event, error) {
	switch s {
	case StatusLocked:
		return EventConfirm, nil
	case StatusAssigned, StatusEnroute, StatusArrived:
		return EventAdvance, nil
	case StatusFinished:
		return EventPayCommission, nil
	default:
		return "", fmt.Errorf("%w: nothing to advance in %q", hail.ErrInvalidTransition, s)
	}
}

// ClaimedOrLater reports whether a status implies a non-empty claimant.
func ClaimedOrLater(s Status) bool {
	switch s {
	case StatusLocked, StatusAssigned, StatusEnroute, StatusArrived,
		StatusFinished, StatusCommissionPaid:
		return true
	default:
		return false
	}
}

// Terminal reports whether a ride in this status can never change again.
func Terminal(s Status) bool {
	return s == StatusCommissionPaid || s == StatusCancelled
}

// Cancellable reports whether EventCancel is legal in this status.
// Per the table: every status except finished and the terminal two.
func Cancellable(s Status) bool {
	return Allowed(s, EventCancel)
}

// Valid reports whether s is a member of the closed status enum.
func Valid(s Status) bool {
	switch s {
	case StatusCreated, StatusSent, StatusLocked, StatusAssigned,
		StatusEnroute, StatusArrived, StatusFinished,
		StatusCommissionPaid, StatusCancelled, StatusUndeliverable:
		return true
	default:
		return false
	}
}

// All returns every member of the status enum, in lifecycle order.
func All() []Status {
	return []Status{
		StatusCreated, StatusSent, StatusLocked, StatusAssigned,
		StatusEnroute, StatusArrived, StatusFinished,
		StatusCommissionPaid, StatusCancelled, StatusUndeliverable,
	}
}
