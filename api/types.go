package api

import (
	"time"

	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/stream"
)

// ErrorResponse is the body of a non-2xx operator API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ── ops ──────────────────────────────────────────────────────────

// ChannelStatus is one channel's health view in the status response.
type ChannelStatus struct {
	Name          string    `json:"name"`
	Healthy       bool      `json:"healthy"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// StatusResponse is the quick liveness view: dispatch mode plus the
// last known health flag per channel.
type StatusResponse struct {
	Mode     string          `json:"mode"`
	Channels []ChannelStatus `json:"channels"`
}

// ChannelStats is one channel's counters in the stats response.
type ChannelStats struct {
	Healthy bool             `json:"healthy"`
	Stats   channel.Snapshot `json:"stats"`
}

// StatsResponse carries per-channel send counters and stream broker
// metrics.
type StatsResponse struct {
	Mode     string                  `json:"mode"`
	Channels map[string]ChannelStats `json:"channels"`
	Broker   stream.BrokerStats      `json:"broker"`
}

// RideCounts groups ride totals by lifecycle status.
type RideCounts struct {
	Created        int `json:"created"`
	Sent           int `json:"sent"`
	Locked         int `json:"locked"`
	Assigned       int `json:"assigned"`
	Enroute        int `json:"enroute"`
	Arrived        int `json:"arrived"`
	Finished       int `json:"finished"`
	CommissionPaid int `json:"commission_paid"`
	Cancelled      int `json:"cancelled"`
	Undeliverable  int `json:"undeliverable"`
}

// DriverStanding is one driver's line in the operational report.
type DriverStanding struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	RidesClaimed   int    `json:"rides_claimed"`
	RidesCompleted int    `json:"rides_completed"`
}

// ReportResponse is the operational summary consumed by the admin UI.
type ReportResponse struct {
	Rides           RideCounts       `json:"rides"`
	Drivers         []DriverStanding `json:"drivers"`
	OpenUndelivered int              `json:"open_undelivered"`
}

// SwitchModeRequest selects a dispatch mode: auto, primary-only, or
// secondary-only.
type SwitchModeRequest struct {
	Mode string `json:"mode"`
}

// SwitchModeResponse confirms the mode now in effect.
type SwitchModeResponse struct {
	Mode string `json:"mode"`
}

// CheckHealthResponse carries the fresh health flag per channel after a
// synchronous probe.
type CheckHealthResponse struct {
	Channels map[string]bool `json:"channels"`
}

// ── rides ────────────────────────────────────────────────────────

// CreateRideRequest carries the operator-supplied ride details.
type CreateRideRequest struct {
	Pickup       string `json:"pickup"`
	Dropoff      string `json:"dropoff"`
	RiderName    string `json:"rider_name,omitempty"`
	RiderContact string `json:"rider_contact,omitempty"`
}

// ListRidesRequest filters the ride listing. Status is required; rides
// are returned oldest first.
type ListRidesRequest struct {
	Status string `json:"status" query:"status"`
	Limit  int    `json:"limit" query:"limit"`
	Offset int    `json:"offset" query:"offset"`
}

// ── drivers ──────────────────────────────────────────────────────

// UpsertDriverRequest creates or updates a driver record. ID is
// optional on create; a fresh one is minted when absent.
type UpsertDriverRequest struct {
	ID                   string `json:"id,omitempty"`
	Name                 string `json:"name"`
	Phone                string `json:"phone"`
	IsActive             bool   `json:"is_active"`
	IsBlocked            bool   `json:"is_blocked"`
	RegistrationApproved bool   `json:"registration_approved"`
}

// ── undelivered ──────────────────────────────────────────────────

// ListUndeliveredRequest filters the undelivered listing.
type ListUndeliveredRequest struct {
	IncludeResolved bool `json:"include_resolved" query:"include_resolved"`
	Limit           int  `json:"limit" query:"limit"`
	Offset          int  `json:"offset" query:"offset"`
}

// PurgeUndeliveredResponse reports how many resolved entries were
// removed.
type PurgeUndeliveredResponse struct {
	Purged int64 `json:"purged"`
}

// ── webhook ──────────────────────────────────────────────────────

// InboundMessage is the provider's webhook payload. The signature
// header must cover the canonical string
// "message_id\nfrom\nbody" under the shared secret.
type InboundMessage struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Channel   string `json:"channel,omitempty"`
}

// WebhookReply is the textual reply rendered to the driver. Always
// carried on HTTP 200 regardless of the command's outcome.
type WebhookReply struct {
	Text string `json:"text"`
}

// defaultLimit caps unbounded list requests.
func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
