package sqlite

import (
	"encoding/json"
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
	Status string    `json:"status"`
	Actor  string    `json:"actor"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

type rideModel struct {
	grove.BaseModel `grove:"table:hail_rides"`

	ID             string     `grove:"id,pk"`
	Number         int64      `grove:"number,notnull"`
	Status         string     `grove:"status,notnull"`
	ClaimToken     string     `grove:"claim_token"`
	Claimant       string     `grove:"claimant"`
	DispatchMethod string     `grove:"dispatch_method"`
	BroadcastCount int        `grove:"broadcast_count,notnull,default:0"`
	LockedAt       *time.Time `grove:"locked_at"`
	Pickup         string     `grove:"pickup,notnull"`
	Dropoff        string     `grove:"dropoff,notnull"`
	RiderName      string     `grove:"rider_name"`
	RiderContact   string     `grove:"rider_contact"`
	History        string     `grove:"history,notnull,default:'[]'"`
	CreatedAt      time.Time  `grove:"created_at,notnull"`
	UpdatedAt      time.Time  `grove:"updated_at,notnull"`
}

func marshalHistory(entries []ride.HistoryEntry) (string, error) {
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
		return "", fmt.Errorf("hail/sqlite: marshal history: %w", err)
	}
	return string(data), nil
}

func unmarshalHistory(data string) ([]ride.HistoryEntry, error) {
	if data == "" {
		return nil, nil
	}
	var models []historyModel
	if err := json.Unmarshal([]byte(data), &models); err != nil {
		return nil, fmt.Errorf("hail/sqlite: unmarshal history: %w", err)
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
		return nil, fmt.Errorf("hail/sqlite: parse ride id %q: %w", m.ID, err)
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
	grove.BaseModel `grove:"table:hail_drivers"`

	ID                   string    `grove:"id,pk"`
	Name                 string    `grove:"name,notnull"`
	Phone                string    `grove:"phone,notnull,unique"`
	IsActive             bool      `grove:"is_active,notnull,default:1"`
	IsBlocked            bool      `grove:"is_blocked,notnull,default:0"`
	RegistrationApproved bool      `grove:"registration_approved,notnull,default:0"`
	RidesClaimed         int       `grove:"rides_claimed,notnull,default:0"`
	RidesCompleted       int       `grove:"rides_completed,notnull,default:0"`
	CreatedAt            time.Time `grove:"created_at,notnull"`
	UpdatedAt            time.Time `grove:"updated_at,notnull"`
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
		return nil, fmt.Errorf("hail/sqlite: parse driver id %q: %w", m.ID, err)
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

	ID           string     `grove:"id,pk"`
	RideID       string     `grove:"ride_id,notnull"`
	RideNumber   int64      `grove:"ride_number,notnull"`
	Reason       string     `grove:"reason,notnull"`
	ChannelTried string     `grove:"channel_tried"`
	Attempts     int        `grove:"attempts,notnull,default:0"`
	Resolved     bool       `grove:"resolved,notnull,default:0"`
	ResolvedAt   *time.Time `grove:"resolved_at"`
	Resolution   string     `grove:"resolution"`
	CreatedAt    time.Time  `grove:"created_at,notnull"`
	UpdatedAt    time.Time  `grove:"updated_at,notnull"`
}

// counterModel backs sequential ride numbers.
type counterModel struct {
	grove.BaseModel `grove:"table:hail_counters"`

	Name  string `grove:"name,pk"`
	Value int64  `grove:"value,notnull,default:0"`
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
		return nil, fmt.Errorf("hail/sqlite: parse undelivered id %q: %w", m.ID, err)
	}

	parsedRideID, err := id.ParseRideID(m.RideID)
	if err != nil {
		return nil, fmt.Errorf("hail/sqlite: parse ride id %q: %w", m.RideID, err)
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
