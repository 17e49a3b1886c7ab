package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/undelivered"
)

// ── Ride model ────────────────────────────────────────────────────

type historyModel struct {
	Status string    `bson:"status"`
	Actor  string    `bson:"actor"`
	Detail string    `bson:"detail,omitempty"`
	At     time.Time `bson:"at"`
}

type rideModel struct {
	grove.BaseModel `grove:"table:hail_rides"`

	ID             string         `grove:"id,pk"            bson:"_id"`
	Number         int64          `grove:"number,notnull,unique" bson:"number"`
	Status         string         `grove:"status,notnull"   bson:"status"`
	ClaimToken     string         `grove:"claim_token"      bson:"claim_token,omitempty"`
	Claimant       string         `grove:"claimant"         bson:"claimant,omitempty"`
	DispatchMethod string         `grove:"dispatch_method"  bson:"dispatch_method,omitempty"`
	BroadcastCount int            `grove:"broadcast_count,notnull" bson:"broadcast_count"`
	LockedAt       *time.Time     `grove:"locked_at"        bson:"locked_at,omitempty"`
	Pickup         string         `grove:"pickup,notnull"   bson:"pickup"`
	Dropoff        string         `grove:"dropoff,notnull"  bson:"dropoff"`
	RiderName      string         `grove:"rider_name"       bson:"rider_name,omitempty"`
	RiderContact   string         `grove:"rider_contact"    bson:"rider_contact,omitempty"`
	History        []historyModel `grove:"history"          bson:"history"`
	CreatedAt      time.Time      `grove:"created_at,notnull" bson:"created_at"`
	UpdatedAt      time.Time      `grove:"updated_at,notnull" bson:"updated_at"`
}

func toHistoryModel(h ride.HistoryEntry) historyModel {
	return historyModel{
		Status: string(h.Status),
		Actor:  h.Actor,
		Detail: h.Detail,
		At:     h.At,
	}
}

func toRideModel(r *ride.Ride) *rideModel {
	history := make([]historyModel, len(r.History))
	for i, h := range r.History {
		history[i] = toHistoryModel(h)
	}
	return &rideModel{
		ID:             r.ID.String(),
		Number:         r.Number,
		Status:         string(r.Status),
		ClaimToken:     r.ClaimToken,
		Claimant:       r.Claimant.String(),
		DispatchMethod: r.DispatchMethod,
		BroadcastCount: r.BroadcastCount,
		LockedAt:       r.LockedAt,
		Pickup:         r.Pickup,
		Dropoff:        r.Dropoff,
		RiderName:      r.RiderName,
		RiderContact:   r.RiderContact,
		History:        history,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromRideModel(m *rideModel) (*ride.Ride, error) {
	parsedID, err := id.ParseRideID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("hail/mongo: parse ride id %q: %w", m.ID, err)
	}

	history := make([]ride.HistoryEntry, len(m.History))
	for i, h := range m.History {
		history[i] = ride.HistoryEntry{
			Status: ride.Status(h.Status),
			Actor:  h.Actor,
			Detail: h.Detail,
			At:     h.At,
		}
	}

	r := &ride.Ride{
		Entity: hail.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             parsedID,
		Number:         m.Number,
		Status:         ride.Status(m.Status),
		ClaimToken:     m.ClaimToken,
		DispatchMethod: m.DispatchMethod,
		BroadcastCount: m.BroadcastCount,
		LockedAt:       m.LockedAt,
		Pickup:         m.Pickup,
		Dropoff:        m.Dropoff,
		RiderName:      m.RiderName,
		RiderContact:   m.RiderContact,
		History:        history,
	}

	if m.Claimant != "" {
		parsedClaimant, cErr := id.ParseDriverID(m.Claimant)
		if cErr == nil {
			r.Claimant = parsedClaimant
		}
	}

	return r, nil
}

// ── Driver model ──────────────────────────────────────────────────

type driverModel struct {
	grove.BaseModel `grove:"table:hail_drivers"`

	ID                   string    `grove:"id,pk"            bson:"_id"`
	Name                 string    `grove:"name,notnull"     bson:"name"`
	Phone                string    `grove:"phone,notnull,unique" bson:"phone"`
	IsActive             bool      `grove:"is_active,notnull" bson:"is_active"`
	IsBlocked            bool      `grove:"is_blocked,notnull" bson:"is_blocked"`
	RegistrationApproved bool      `grove:"registration_approved,notnull" bson:"registration_approved"`
	RidesClaimed         int       `grove:"rides_claimed,notnull" bson:"rides_claimed"`
	RidesCompleted       int       `grove:"rides_completed,notnull" bson:"rides_completed"`
	CreatedAt            time.Time `grove:"created_at,notnull" bson:"created_at"`
	UpdatedAt            time.Time `grove:"updated_at,notnull" bson:"updated_at"`
}

func toDriverModel(d *driver.Driver) *driverModel {
	return &driverModel{
		ID:                   d.ID.String(),
		Name:                 d.Name,
		Phone:                d.Phone,
		IsActive:             d.IsActive,
		IsBlocked:            d.IsBlocked,
		RegistrationApproved: d.RegistrationApproved,
		RidesClaimed:         d.RidesClaimed,
		RidesCompleted:       d.RidesCompleted,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

func fromDriverModel(m *driverModel) (*driver.Driver, error) {
	parsedID, err := id.ParseDriverID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("hail/mongo: parse driver id %q: %w", m.ID, err)
	}

	return &driver.Driver{
		Entity: hail.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                   parsedID,
		Name:                 m.Name,
		Phone:                m.Phone,
		IsActive:             m.IsActive,
		IsBlocked:            m.IsBlocked,
		RegistrationApproved: m.RegistrationApproved,
		RidesClaimed:         m.RidesClaimed,
		RidesCompleted:       m.RidesCompleted,
	}, nil
}

// ── Undelivered entry model ───────────────────────────────────────

type undeliveredModel struct {
	grove.BaseModel `grove:"table:hail_undelivered"`

	ID           string     `grove:"id,pk"            bson:"_id"`
	RideID       string     `grove:"ride_id,notnull"  bson:"ride_id"`
	RideNumber   int64      `grove:"ride_number,notnull" bson:"ride_number"`
	Reason       string     `grove:"reason,notnull"   bson:"reason"`
	ChannelTried string     `grove:"channel_tried"    bson:"channel_tried,omitempty"`
	Attempts     int        `grove:"attempts,notnull" bson:"attempts"`
	Resolved     bool       `grove:"resolved,notnull" bson:"resolved"`
	ResolvedAt   *time.Time `grove:"resolved_at"      bson:"resolved_at,omitempty"`
	Resolution   string     `grove:"resolution"       bson:"resolution,omitempty"`
	CreatedAt    time.Time  `grove:"created_at,notnull" bson:"created_at"`
	UpdatedAt    time.Time  `grove:"updated_at,notnull" bson:"updated_at"`
}

func toUndeliveredModel(e *undelivered.Entry) *undeliveredModel {
	return &undeliveredModel{
		ID:           e.ID.String(),
		RideID:       e.RideID.String(),
		RideNumber:   e.RideNumber,
		Reason:       e.Reason,
		ChannelTried: e.ChannelTried,
		Attempts:     e.Attempts,
		Resolved:     e.Resolved,
		ResolvedAt:   e.ResolvedAt,
		Resolution:   e.Resolution,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func fromUndeliveredModel(m *undeliveredModel) (*undelivered.Entry, error) {
	parsedID, err := id.ParseUndeliveredID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("hail/mongo: parse undelivered id %q: %w", m.ID, err)
	}

	parsedRideID, err := id.ParseRideID(m.RideID)
	if err != nil {
		return nil, fmt.Errorf("hail/mongo: parse ride id %q: %w", m.RideID, err)
	}

	return &undelivered.Entry{
		Entity: hail.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		RideID:       parsedRideID,
		RideNumber:   m.RideNumber,
		Reason:       m.Reason,
		ChannelTried: m.ChannelTried,
		Attempts:     m.Attempts,
		Resolved:     m.Resolved,
		ResolvedAt:   m.ResolvedAt,
		Resolution:   m.Resolution,
	}, nil
}
