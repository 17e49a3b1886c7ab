package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/hail/id"
	"github.com/xraph/hail/undelivered"
)

func (a *API) listUndelivered(ctx forge.Context, req *ListUndeliveredRequest) ([]*undelivered.Entry, error) {
	if a.authorize(ctx, ScopeOperator) == nil {
		return nil, unauthorized(ctx)
	}

	entries, err := a.eng.Undelivered().List(ctx.Context(), undelivered.ListOpts{
		IncludeResolved: req.IncludeResolved,
		Limit:           defaultLimit(req.Limit),
		Offset:          req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list undelivered entries: %w", err)
	}

	return entries, ctx.JSON(http.StatusOK, entries)
}

func (a *API) getUndelivered(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	entryID, err := id.ParseUndeliveredID(ctx.Param("entryId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid entry ID: %v", err))
	}

	e, err := a.eng.Undelivered().Get(ctx.Context(), entryID)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, e)
}

func (a *API) purgeUndelivered(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	// Purge resolved entries older than 30 days.
	before := time.Now().UTC().Add(-30 * 24 * time.Hour)

	count, err := a.eng.Undelivered().Purge(ctx.Context(), before)
	if err != nil {
		return fmt.Errorf("purge undelivered: %w", err)
	}

	return ctx.JSON(http.StatusOK, PurgeUndeliveredResponse{Purged: count})
}

func (a *API) redispatch(ctx forge.Context) error {
	if a.authorize(ctx, ScopeOperator) == nil {
		return unauthorized(ctx)
	}

	entryID, err := id.ParseUndeliveredID(ctx.Param("entryId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid entry ID: %v", err))
	}

	rd, err := a.eng.Redispatch(ctx.Context(), entryID)
	if err != nil {
		return mapStoreError(err)
	}

	return ctx.JSON(http.StatusOK, rd)
}
