// Package ride defines the ride domain model: the lifecycle status enum,
// the transition table that is the single authority on legal status
// changes, the append-only history log, and the store interface whose
// atomic conditional Transition operation underpins claim arbitration.
package ride
