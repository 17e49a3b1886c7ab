package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/hail"
	"github.com/xraph/hail/engine"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

func (a *API) createRide(ctx forge.Context, req *CreateRideRequest) (*ride.Ride, error) {
	identity := a.authorize(ctx, ScopeOperator)
	if identity == nil {
		return nil, unauthorized(ctx)
	}
	if req.Pickup == "" || req.Dropoff == "" {
		return nil, forge.BadRequest("pickup and dropoff are required")
	}

	rd, err := a.eng.CreateRide(ctx.Context(), engine.CreateRideInput{
		Pickup:       req.Pickup,
		Dropoff:      req.Dropoff,
		RiderName:    req.RiderName,
		RiderContact: req.RiderContact,
		Actor:        identity.Subject,
	})
	if err != nil {
		if errors.Is(err, hail.ErrRideAlreadyExists) {
			return nil, forge.BadRequest(err.Error())
		}
		return nil, mapStoreError(err)
	}

	return rd, ctx.JSON(http.StatusCreated, rd)
}

func (a *API) listRides(ctx forge.Context, req *ListRidesRequest) ([]*ride.Ride, error) {
	if a.authorize(ctx, ScopeOperator) == nil {
		return nil, unauthorized(ctx)
	}

	status := ride.Status(req.Status)
	if !validStatus(status) {
		return nil, forge.BadRequest(fmt.Sprintf("invalid status: %q", req.Status))
	}

	rides, err := a.eng.Rides().ListRidesByStatus(ctx.Context(), status, ride.ListOpts{
		Limit:  defaultLimit(req.Limit),
		Offset: req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}

	return rides, ctx.JSON(http.StatusOK, rides)
}

func (a *API) getRide(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	rideID, err := id.ParseRideID(ctx.Param("rideId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid ride ID: %v", err))
	}

	rd, err := a.eng.Rides().GetRide(ctx.Context(), rideID)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, rd)
}

func (a *API) broadcastRide(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	rideID, err := id.ParseRideID(ctx.Param("rideId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid ride ID: %v", err))
	}

	rd, err := a.eng.Broadcast(ctx.Context(), rideID)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, rd)
}

func (a *API) confirmRide(ctx forge.Context) error {
	identity := a.authorize(ctx, ScopeOperator)
	if identity == nil {
		return unauthorized(ctx)
	}

	rideID, err := id.ParseRideID(ctx.Param("rideId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid ride ID: %v", err))
	}

	rd, err := a.eng.Confirm(ctx.Context(), rideID, identity.Subject)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, rd)
}

func (a *API) advanceRide(ctx forge.Context) error {
	identity := a.authorize(ctx, ScopeOperator)
	if identity == nil {
		return unauthorized(ctx)
	}

	rideID, err := id.ParseRideID(ctx.Param("rideId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid ride ID: %v", err))
	}

	rd, err := a.eng.Advance(ctx.Context(), rideID, identity.Subject)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, rd)
}

func (a *API) cancelRide(ctx forge.Context) error {
	identity := a.authorize(ctx, ScopeOperator)
	if identity == nil {
		return unauthorized(ctx)
	}

	rideID, err := id.ParseRideID(ctx.Param("rideId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid ride ID: %v", err))
	}

	rd, err := a.eng.Cancel(ctx.Context(), rideID, identity.Subject)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, rd)
}

func (a *API) unlockRide(ctx forge.Context) error {
	identity := a.authorize(ctx, ScopeOperator)
	if identity == nil {
		return unauthorized(ctx)
	}

	rideID, err := id.ParseRideID(ctx.Param("rideId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid ride ID: %v", err))
	}

	rd, err := a.eng.Unlock(ctx.Context(), rideID, identity.Subject)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, rd)
}

// validStatus reports whether s names a lifecycle status.
func validStatus(s ride.Status) bool {
	for _, status := range allStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// mapStoreError converts hail sentinel errors to forge HTTP errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, hail.ErrInvalidTransition) ||
		errors.Is(err, hail.ErrStateConflict) ||
		errors.Is(err, hail.ErrInvalidMode) {
		return forge.BadRequest(err.Error())
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, hail.ErrRideNotFound) ||
		errors.Is(err, hail.ErrDriverNotFound) ||
		errors.Is(err, hail.ErrUndeliveredNotFound)
}
