// Package driver defines the driver record and store interface. Drivers
// are external actors competing for rides; the claim arbitrator consults
// their eligibility flags at claim time with the store as the single
// source of truth.
package driver

import (
	"errors"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
)

// Eligibility rejection reasons. Each failed check gets its own error so
// the webhook layer can reply with a specific, user-facing reason.
var (
	ErrInactive    = errors.New("driver: account is inactive")
	ErrBlocked     = errors.New("driver: account is blocked")
	ErrNotApproved = errors.New("driver: registration not yet approved")
)

// Driver is a worker competing to claim rides.
type Driver struct {
	hail.Entity

	ID    id.DriverID `json:"id"`
	Name  string      `json:"name"`
	Phone string      `json:"phone"`

	IsActive             bool `json:"is_active"`
	IsBlocked            bool `json:"is_blocked"`
	RegistrationApproved bool `json:"registration_approved"`

	RidesClaimed   int `json:"rides_claimed"`
	RidesCompleted int `json:"rides_completed"`
}

// Eligible reports whether the driver may claim a ride. Checks run in a
// fixed order and the first failure wins, so the reply to the driver
// names one concrete problem at a time.
func (d *Driver) Eligible() error {
	if d.IsBlocked {
		return ErrBlocked
	}
	if !d.IsActive {
		return ErrInactive
	}
	if !d.RegistrationApproved {
		return ErrNotApproved
	}
	return nil
}
