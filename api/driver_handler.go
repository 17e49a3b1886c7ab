package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
)

func (a *API) listDrivers(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	drivers, err := a.eng.Drivers().ListDrivers(ctx.Context())
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}

	return ctx.JSON(http.StatusOK, drivers)
}

func (a *API) getDriver(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	driverID, err := id.ParseDriverID(ctx.Param("driverId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid driver ID: %v", err))
	}

	d, err := a.eng.Drivers().GetDriver(ctx.Context(), driverID)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, d)
}

func (a *API) upsertDriver(ctx forge.Context, req *UpsertDriverRequest) (*driver.Driver, error) {
	if a.authorize(ctx, ScopeOperator) == nil {
		return nil, unauthorized(ctx)
	}
	if req.Name == "" || req.Phone == "" {
		return nil, forge.BadRequest("name and phone are required")
	}

	c := ctx.Context()

	var d *driver.Driver
	if req.ID != "" {
		driverID, err := id.ParseDriverID(req.ID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid driver ID: %v", err))
		}
		d, err = a.eng.Drivers().GetDriver(c, driverID)
		if err != nil {
			return nil, mapStoreError(err)
		}
	} else {
		d = &driver.Driver{
			Entity: hail.NewEntity(),
			ID:     id.NewDriverID(),
		}
	}

	d.Name = req.Name
	d.Phone = req.Phone
	d.IsActive = req.IsActive
	d.IsBlocked = req.IsBlocked
	d.RegistrationApproved = req.RegistrationApproved

	if err := a.eng.Drivers().UpsertDriver(c, d); err != nil {
		return nil, fmt.Errorf("upsert driver: %w", err)
	}

	return d, ctx.JSON(http.StatusOK, d)
}
