package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/engine"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/undelivered"
)

// API wires all Forge-style HTTP handlers together for the hail system:
// operator controls, ride and driver inspection, undelivered management,
// and the inbound webhook mount.
type API struct {
	eng    *engine.Engine
	router forge.Router
	auth   Authenticator
	secret []byte
}

// Option configures the API.
type Option func(*API)

// WithAuthenticator sets the operator authenticator. Defaults to
// NoopAuthenticator, which accepts everything — development only.
func WithAuthenticator(auth Authenticator) Option {
	return func(a *API) { a.auth = auth }
}

// WithWebhookSecret sets the shared secret used to verify inbound
// webhook signatures. Without it the webhook mount rejects everything.
func WithWebhookSecret(secret []byte) Option {
	return func(a *API) { a.secret = secret }
}

// New creates an API from a hail Engine.
func New(eng *engine.Engine, router forge.Router, opts ...Option) *API {
	a := &API{
		eng:    eng,
		router: router,
		auth:   &NoopAuthenticator{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all hail API routes into the given Forge
// router with full OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerOpsRoutes(router)
	a.registerRideRoutes(router)
	a.registerDriverRoutes(router)
	a.registerUndeliveredRoutes(router)
	a.registerWebhookRoutes(router)
}

// registerOpsRoutes registers operator control and diagnostic routes.
func (a *API) registerOpsRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("ops"))

	_ = g.GET("/status", a.status,
		forge.WithSummary("System status"),
		forge.WithDescription("Returns the dispatch mode and per-channel health flags."),
		forge.WithOperationID("systemStatus"),
		forge.WithResponseSchema(http.StatusOK, "System status", StatusResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/stats", a.stats,
		forge.WithSummary("Channel stats"),
		forge.WithDescription("Returns per-channel send counters and stream broker metrics."),
		forge.WithOperationID("channelStats"),
		forge.WithResponseSchema(http.StatusOK, "Channel statistics", StatsResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/report", a.report,
		forge.WithSummary("Operational report"),
		forge.WithDescription("Returns ride counts by status, driver standings, and open undelivered entries."),
		forge.WithOperationID("operationalReport"),
		forge.WithResponseSchema(http.StatusOK, "Operational report", ReportResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/switch-mode", a.switchMode,
		forge.WithSummary("Switch dispatch mode"),
		forge.WithDescription("Changes how the router picks an outbound channel: auto, primary-only, or secondary-only."),
		forge.WithOperationID("switchMode"),
		forge.WithRequestSchema(SwitchModeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "New mode", SwitchModeResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/reset-stats", a.resetStats,
		forge.WithSummary("Reset channel stats"),
		forge.WithDescription("Zeroes channel send counters. Health flags are not affected."),
		forge.WithOperationID("resetStats"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/check-health", a.checkHealth,
		forge.WithSummary("Force health check"),
		forge.WithDescription("Probes every channel synchronously and returns the fresh health flags."),
		forge.WithOperationID("checkHealth"),
		forge.WithResponseSchema(http.StatusOK, "Health flags", CheckHealthResponse{}),
		forge.WithErrorResponses(),
	)
}

// registerRideRoutes registers ride management routes.
func (a *API) registerRideRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("rides"))

	_ = g.POST("/rides", a.createRide,
		forge.WithSummary("Create ride"),
		forge.WithDescription("Creates a ride in created status. It is not broadcast until requested."),
		forge.WithOperationID("createRide"),
		forge.WithRequestSchema(CreateRideRequest{}),
		forge.WithCreatedResponse(&ride.Ride{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/rides", a.listRides,
		forge.WithSummary("List rides"),
		forge.WithDescription("Returns rides filtered by status, oldest first."),
		forge.WithOperationID("listRides"),
		forge.WithRequestSchema(ListRidesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Ride list", []*ride.Ride{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/rides/:rideId", a.getRide,
		forge.WithSummary("Get ride"),
		forge.WithDescription("Returns details of a specific ride, including its audit history."),
		forge.WithOperationID("getRide"),
		forge.WithResponseSchema(http.StatusOK, "Ride details", &ride.Ride{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/rides/:rideId/broadcast", a.broadcastRide,
		forge.WithSummary("Broadcast ride"),
		forge.WithDescription("Dispatches the ride to the driver pool with a fresh claim token."),
		forge.WithOperationID("broadcastRide"),
		forge.WithResponseSchema(http.StatusOK, "Broadcast ride", &ride.Ride{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/rides/:rideId/confirm", a.confirmRide,
		forge.WithSummary("Confirm ride"),
		forge.WithDescription("Moves a locked ride to assigned on the claimant's behalf."),
		forge.WithOperationID("confirmRide"),
		forge.WithResponseSchema(http.StatusOK, "Confirmed ride", &ride.Ride{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/rides/:rideId/advance", a.advanceRide,
		forge.WithSummary("Advance ride"),
		forge.WithDescription("Moves the ride one lifecycle step forward on behalf of an operator."),
		forge.WithOperationID("advanceRide"),
		forge.WithResponseSchema(http.StatusOK, "Advanced ride", &ride.Ride{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/rides/:rideId/cancel", a.cancelRide,
		forge.WithSummary("Cancel ride"),
		forge.WithDescription("Cancels a ride. Legal from any non-terminal status except finished."),
		forge.WithOperationID("cancelRide"),
		forge.WithResponseSchema(http.StatusOK, "Cancelled ride", &ride.Ride{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/rides/:rideId/unlock", a.unlockRide,
		forge.WithSummary("Unlock ride"),
		forge.WithDescription("Reverts a locked ride to sent, clearing the claimant."),
		forge.WithOperationID("unlockRide"),
		forge.WithResponseSchema(http.StatusOK, "Unlocked ride", &ride.Ride{}),
		forge.WithErrorResponses(),
	)
}

// registerDriverRoutes registers driver management routes.
func (a *API) registerDriverRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("drivers"))

	_ = g.GET("/drivers", a.listDrivers,
		forge.WithSummary("List drivers"),
		forge.WithDescription("Returns all drivers, most recently updated first."),
		forge.WithOperationID("listDrivers"),
		forge.WithResponseSchema(http.StatusOK, "Driver list", []*driver.Driver{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/drivers/:driverId", a.getDriver,
		forge.WithSummary("Get driver"),
		forge.WithDescription("Returns details of a specific driver."),
		forge.WithOperationID("getDriver"),
		forge.WithResponseSchema(http.StatusOK, "Driver details", &driver.Driver{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/drivers", a.upsertDriver,
		forge.WithSummary("Upsert driver"),
		forge.WithDescription("Creates or updates a driver record, including eligibility flags."),
		forge.WithOperationID("upsertDriver"),
		forge.WithRequestSchema(UpsertDriverRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Driver record", &driver.Driver{}),
		forge.WithErrorResponses(),
	)
}

// registerUndeliveredRoutes registers undelivered ride management routes.
func (a *API) registerUndeliveredRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("undelivered"))

	_ = g.GET("/undelivered", a.listUndelivered,
		forge.WithSummary("List undelivered entries"),
		forge.WithDescription("Returns parked rides awaiting redispatch, newest first."),
		forge.WithOperationID("listUndelivered"),
		forge.WithRequestSchema(ListUndeliveredRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Undelivered entries", []*undelivered.Entry{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/undelivered/:entryId", a.getUndelivered,
		forge.WithSummary("Get undelivered entry"),
		forge.WithDescription("Returns details of a specific undelivered entry."),
		forge.WithOperationID("getUndelivered"),
		forge.WithResponseSchema(http.StatusOK, "Undelivered entry details", &undelivered.Entry{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/undelivered/purge", a.purgeUndelivered,
		forge.WithSummary("Purge undelivered entries"),
		forge.WithDescription("Removes old resolved undelivered entries."),
		forge.WithOperationID("purgeUndelivered"),
		forge.WithResponseSchema(http.StatusOK, "Purge result", PurgeUndeliveredResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/undelivered/:entryId/redispatch", a.redispatch,
		forge.WithSummary("Redispatch undelivered ride"),
		forge.WithDescription("Rebroadcasts a parked ride and resolves its undelivered entry."),
		forge.WithOperationID("redispatchUndelivered"),
		forge.WithResponseSchema(http.StatusOK, "Redispatched ride", &ride.Ride{}),
		forge.WithErrorResponses(),
	)
}

// registerWebhookRoutes registers the provider-facing webhook mount.
// Unlike the operator routes it is signature-gated, not token-gated.
func (a *API) registerWebhookRoutes(router forge.Router) {
	g := router.Group("/webhook", forge.WithGroupTags("webhook"))

	_ = g.POST("/inbound", a.inboundWebhook,
		forge.WithSummary("Inbound driver message"),
		forge.WithDescription("Accepts a signed provider message envelope and always answers 200 with a textual reply."),
		forge.WithOperationID("inboundWebhook"),
		forge.WithRequestSchema(InboundMessage{}),
		forge.WithResponseSchema(http.StatusOK, "Textual reply", WebhookReply{}),
		forge.WithErrorResponses(),
	)
}
