package hail

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("hail: no store configured")
	ErrStoreClosed     = errors.New("hail: store closed")
	ErrMigrationFailed = errors.New("hail: migration failed")

	// Not found errors.
	ErrRideNotFound        = errors.New("hail: ride not found")
	ErrDriverNotFound      = errors.New("hail: driver not found")
	ErrUndeliveredNotFound = errors.New("hail: undelivered entry not found")

	// Conflict errors.
	ErrRideAlreadyExists = errors.New("hail: ride already exists")
	// ErrAlreadyClaimed reports that another driver committed the claim
	// first. Under contention this is the expected outcome for every
	// caller but one; treat it as a normal result, not a failure.
	ErrAlreadyClaimed = errors.New("hail: ride already claimed")
	// ErrStateConflict reports that a conditional transition matched no
	// record because the ride's status changed between read and write.
	ErrStateConflict = errors.New("hail: ride state changed concurrently")

	// State errors.
	ErrInvalidTransition = errors.New("hail: invalid lifecycle transition")
	ErrInvalidToken      = errors.New("hail: invalid claim token")
	ErrNotClaimant       = errors.New("hail: sender is not the claimant")

	// Dispatch errors.
	ErrChannelUnavailable = errors.New("hail: all viable channels exhausted")
	ErrSendRejected       = errors.New("hail: channel rejected the send")
	ErrSendTimeout        = errors.New("hail: channel send timed out")
	ErrUnknownChannel     = errors.New("hail: unknown channel")
	ErrInvalidMode        = errors.New("hail: invalid dispatch mode")
)
