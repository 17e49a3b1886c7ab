// Package api provides HTTP handlers for the hail operator API.
package api

import (
	"net/http"
	"sort"

	"github.com/xraph/forge"

	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/router"
)

// allStatuses is the reporting order of the lifecycle.
var allStatuses = []ride.Status{
	ride.StatusCreated,
	ride.StatusSent,
	ride.StatusLocked,
	ride.StatusAssigned,
	ride.StatusEnroute,
	ride.StatusArrived,
	ride.StatusFinished,
	ride.StatusCommissionPaid,
	ride.StatusCancelled,
	ride.StatusUndeliverable,
}

func (a *API) status(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	monitor := a.eng.Monitor()
	snaps := monitor.Snapshots()

	channels := make([]ChannelStatus, 0, len(snaps))
	for name, snap := range snaps {
		channels = append(channels, ChannelStatus{
			Name:          name,
			Healthy:       monitor.IsHealthy(name),
			LastCheckedAt: snap.LastCheckedAt,
		})
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })

	return ctx.JSON(http.StatusOK, StatusResponse{
		Mode:     string(a.eng.Router().Mode()),
		Channels: channels,
	})
}

func (a *API) stats(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	monitor := a.eng.Monitor()
	snaps := monitor.Snapshots()

	channels := make(map[string]ChannelStats, len(snaps))
	for name, snap := range snaps {
		channels[name] = ChannelStats{
			Healthy: monitor.IsHealthy(name),
			Stats:   snap,
		}
	}

	return ctx.JSON(http.StatusOK, StatsResponse{
		Mode:     string(a.eng.Router().Mode()),
		Channels: channels,
		Broker:   a.eng.Broker().Stats(),
	})
}

func (a *API) report(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}
	c := ctx.Context()

	var counts RideCounts
	for _, status := range allStatuses {
		count, err := a.eng.Rides().CountRides(c, ride.CountOpts{Status: status})
		if err != nil {
			return forge.InternalError(err)
		}
		switch status {
		case ride.StatusCreated:
			counts.Created = count
		case ride.StatusSent:
			counts.Sent = count
		case ride.StatusLocked:
			counts.Locked = count
		case ride.StatusAssigned:
			counts.Assigned = count
		case ride.StatusEnroute:
			counts.Enroute = count
		case ride.StatusArrived:
			counts.Arrived = count
		case ride.StatusFinished:
			counts.Finished = count
		case ride.StatusCommissionPaid:
			counts.CommissionPaid = count
		case ride.StatusCancelled:
			counts.Cancelled = count
		case ride.StatusUndeliverable:
			counts.Undeliverable = count
		}
	}

	drivers, err := a.eng.Drivers().ListDrivers(c)
	if err != nil {
		return forge.InternalError(err)
	}
	standings := make([]DriverStanding, 0, len(drivers))
	for _, d := range drivers {
		standings = append(standings, DriverStanding{
			ID:             d.ID.String(),
			Name:           d.Name,
			RidesClaimed:   d.RidesClaimed,
			RidesCompleted: d.RidesCompleted,
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].RidesCompleted != standings[j].RidesCompleted {
			return standings[i].RidesCompleted > standings[j].RidesCompleted
		}
		return standings[i].RidesClaimed > standings[j].RidesClaimed
	})

	open, err := a.eng.Undelivered().OpenCount(c)
	if err != nil {
		return forge.InternalError(err)
	}

	return ctx.JSON(http.StatusOK, ReportResponse{
		Rides:           counts,
		Drivers:         standings,
		OpenUndelivered: open,
	})
}

func (a *API) switchMode(ctx forge.Context, req *SwitchModeRequest) (*SwitchModeResponse, error) {
	if a.authorize(ctx, ScopeOperator) == nil {
		return nil, unauthorized(ctx)
	}

	mode, err := router.ParseMode(req.Mode)
	if err != nil {
		return nil, forge.BadRequest(err.Error())
	}
	if err := a.eng.Router().SwitchMode(ctx.Context(), mode); err != nil {
		return nil, forge.BadRequest(err.Error())
	}

	resp := &SwitchModeResponse{Mode: string(mode)}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) resetStats(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	a.eng.Router().ResetStats()
	return ctx.NoContent(http.StatusNoContent)
}

func (a *API) checkHealth(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	return ctx.JSON(http.StatusOK, CheckHealthResponse{
		Channels: a.eng.Monitor().ForceCheckAll(ctx.Context()),
	})
}
