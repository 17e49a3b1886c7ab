package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/undelivered"
)

// ── Ride model ────────────────────────────────────────────────────

type historyModel struct {
	Status string    `json:"status"`
	Actor  string    `json:"actor"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

type rideModel struct {
	bun.BaseModel `bun:"table:hail_rides"`

	ID             string     `bun:"id,pk"`
	Number         int64      `bun:"number,notnull"`
	Status         string     `bun:"status,notnull"`
	ClaimToken     string     `bun:"claim_token,nullzero"`
	Claimant       string     `bun:"claimant,nullzero"`
	DispatchMethod string     `bun:"dispatch_method,nullzero"`
	BroadcastCount int        `bun:"broadcast_count,notnull"`
	LockedAt       *time.Time `bun:"locked_at"`
	Pickup         string     `bun:"pickup,notnull"`
	Dropoff        string     `bun:"dropoff,notnull"`
	RiderName      string     `bun:"rider_name,nullzero"`
	RiderContact   string     `bun:"rider_contact,nullzero"`
	History        []byte     `bun:"history,type:jsonb"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

func marshalHistory(entries []ride.HistoryEntry) ([]byte, error) {
	models := make([]historyModel, len(entries))
	for i, h := range entries {
		models[i] = historyModel{
			Status: string(h.Status),
			Actor:  h.Actor,
			Detail: h.Detail,
			At:     h.At,
		}
	}
	data, err := json.Marshal(models)
	if err != nil {
		return nil, fmt.Errorf("hail/bun: marshal history: %w", err)
	}
	return data, nil
}

func unmarshalHistory(data []byte) ([]ride.HistoryEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var models []historyModel
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("hail/bun: unmarshal history: %w", err)
	}
	entries := make([]ride.HistoryEntry, len(models))
	for i, m := range models {
		entries[i] = ride.HistoryEntry{
			Status: ride.Status(m.Status),
			Actor:  m.Actor,
			Detail: m.Detail,
			At:     m.At,
		}
	}
	return entries, nil
}

func toRideModel(r *ride.Ride) (*rideModel, error) {
	history, err := marshalHistory(r.History)
	if err != nil {
		return nil, err
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
	}, nil
}

func fromRideModel(m *rideModel) (*ride.Ride, error) {
	parsedID, err := id.ParseRideID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("hail/bun: parse ride id %q: %w", m.ID, err)
	}

	history, err := unmarshalHistory(m.History)
	if err != nil {
		return nil, err
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
	bun.BaseModel `bun:"table:hail_drivers"`

	ID                   string    `bun:"id,pk"`
	Name                 string    `bun:"name,notnull"`
	Phone                string    `bun:"phone,notnull"`
	IsActive             bool      `bun:"is_active"`
	IsBlocked            bool      `bun:"is_blocked"`
	RegistrationApproved bool      `bun:"registration_approved"`
	RidesClaimed         int       `bun:"rides_claimed,notnull"`
	RidesCompleted       int       `bun:"rides_completed,notnull"`
	CreatedAt            time.Time `bun:"created_at,notnull"`
	UpdatedAt            time.Time `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("hail/bun: parse driver id %q: %w", m.ID, err)
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
	bun.BaseModel `bun:"table:hail_undelivered"`

	ID           string     `bun:"id,pk"`
	RideID       string     `bun:"ride_id,notnull"`
	RideNumber   int64      `bun:"ride_number,notnull"`
	Reason       string     `bun:"reason,notnull"`
	ChannelTried string     `bun:"channel_tried,nullzero"`
	Attempts     int        `bun:"attempts,notnull"`
	Resolved     bool       `bun:"resolved"`
	ResolvedAt   *time.Time `bun:"resolved_at"`
	Resolution   string     `bun:"resolution,nullzero"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("hail/bun: parse undelivered id %q: %w", m.ID, err)
	}

	parsedRideID, err := id.ParseRideID(m.RideID)
	if err != nil {
		return nil, fmt.Errorf("hail/bun: parse ride id %q: %w", m.RideID, err)
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
