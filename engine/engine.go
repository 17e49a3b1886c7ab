package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/hail"
	"github.com/xraph/hail/backoff"
	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/claim"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ext"
	"github.com/xraph/hail/id"
	mw "github.com/xraph/hail/middleware"
	"github.com/xraph/hail/observability"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/router"
	"github.com/xraph/hail/stream"
	"github.com/xraph/hail/undelivered"
	"github.com/xraph/hail/webhook"
)

// defaultDedupeWindow is how long a webhook message ID is remembered for
// replay suppression.
const defaultDedupeWindow = 5 * time.Minute

// defaultHandleTimeout bounds the processing of one inbound webhook.
const defaultHandleTimeout = 15 * time.Second

// Engine wraps a Coordinator with typed subsystem access.
// Use Build() to create one from a Coordinator and its channels.
type Engine struct {
	c          *hail.Coordinator
	rides      ride.Store
	drivers    driver.Store
	extensions *ext.Registry
	monitor    *channel.Monitor
	router     *router.Router
	arbitrator *claim.Arbitrator
	parked     *undelivered.Service
	broker     *stream.Broker
	handler    webhook.Handler
	logger     *slog.Logger

	mws        []mw.Middleware
	routerOpts []router.Option
	mode       router.Mode

	dedupeWindow  time.Duration
	handleTimeout time.Duration

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Compile-time check: the engine is the webhook's ride-action backend.
var _ webhook.RideActions = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware to the webhook chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithMode sets the initial dispatch mode. Defaults to auto.
func WithMode(m router.Mode) Option {
	return func(eng *Engine) {
		eng.mode = m
	}
}

// WithRouterOptions passes extra options through to the dispatch router,
// e.g. per-channel rate limits.
func WithRouterOptions(opts ...router.Option) Option {
	return func(eng *Engine) {
		eng.routerOpts = append(eng.routerOpts, opts...)
	}
}

// WithDedupeWindow sets how long webhook message IDs are remembered.
func WithDedupeWindow(d time.Duration) Option {
	return func(eng *Engine) {
		eng.dedupeWindow = d
	}
}

// WithHandleTimeout bounds the processing of one inbound webhook.
func WithHandleTimeout(d time.Duration) Option {
	return func(eng *Engine) {
		eng.handleTimeout = d
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the webhook
// tracing middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the webhook
// metrics middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from a Coordinator and the outbound channels.
// The Coordinator's store must implement ride.Store, driver.Store, and
// undelivered.Store. secondary may be nil when only one channel is
// deployed.
func Build(c *hail.Coordinator, primary, secondary channel.Channel, opts ...Option) (*Engine, error) {
	logger := c.Logger()
	store := c.Store()

	if store == nil {
		return nil, hail.ErrNoStore
	}
	if primary == nil {
		return nil, fmt.Errorf("hail: no primary channel configured")
	}

	rs, ok := store.(ride.Store)
	if !ok {
		return nil, fmt.Errorf("hail: store does not implement ride.Store")
	}
	ds, ok := store.(driver.Store)
	if !ok {
		return nil, fmt.Errorf("hail: store does not implement driver.Store")
	}
	us, ok := store.(undelivered.Store)
	if !ok {
		return nil, fmt.Errorf("hail: store does not implement undelivered.Store")
	}

	eng := &Engine{
		c:             c,
		rides:         rs,
		drivers:       ds,
		extensions:    ext.NewRegistry(logger),
		logger:        logger,
		mode:          router.ModeAuto,
		dedupeWindow:  defaultDedupeWindow,
		handleTimeout: defaultHandleTimeout,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Register the built-in extensions: lifecycle metrics and the
	// real-time stream broker.
	eng.extensions.Register(observability.NewMetricsExtension())
	eng.broker = stream.NewBroker(logger)
	eng.extensions.Register(eng.broker)

	config := c.Config()

	channels := []channel.Channel{primary}
	if secondary != nil {
		channels = append(channels, secondary)
	}
	eng.monitor = channel.NewMonitor(logger, channels,
		channel.WithProbeInterval(config.ProbeInterval))

	routerOpts := []router.Option{
		router.WithPolicy(backoff.New(config.MaxSendAttempts, config.BackoffInitial, config.BackoffCap)),
		router.WithSendTimeout(config.SendTimeout),
		router.WithMode(eng.mode),
		router.WithModeEmitter(eng.extensions),
	}
	routerOpts = append(routerOpts, eng.routerOpts...)
	eng.router = router.New(primary, secondary, eng.monitor, logger, routerOpts...)

	eng.arbitrator = claim.NewArbitrator(rs, ds, logger, claim.WithEmitter(eng.extensions))
	eng.parked = undelivered.NewService(us, logger)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/hail"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/hail"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default webhook stack:
	// recover → tracing → metrics → logging → dedupe → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Dedupe(eng.dedupeWindow),
		mw.Timeout(eng.handleTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	processor := webhook.NewProcessor(ds, eng.arbitrator, eng, logger)
	eng.handler = mw.Wrap(mw.Chain(allMws...), processor)

	// Wire back into the Coordinator.
	c.SetMonitor(eng.monitor)
	c.SetExtensions(eng.extensions)

	return eng, nil
}

// CreateRideInput carries the operator-supplied ride details.
type CreateRideInput struct {
	Pickup       string
	Dropoff      string
	RiderName    string
	RiderContact string

	// Actor is recorded in the audit trail. Defaults to "operator".
	Actor string
}

// CreateRide persists a new ride in created status. The ride is not
// broadcast until Broadcast is called.
func (eng *Engine) CreateRide(ctx context.Context, in CreateRideInput) (*ride.Ride, error) {
	if in.Pickup == "" || in.Dropoff == "" {
		return nil, fmt.Errorf("hail/engine: pickup and dropoff are required")
	}
	actor := in.Actor
	if actor == "" {
		actor = "operator"
	}

	number, err := eng.rides.NextRideNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("hail/engine: next ride number: %w", err)
	}

	rd := &ride.Ride{
		Entity:       hail.NewEntity(),
		ID:           id.NewRideID(),
		Number:       number,
		Status:       ride.StatusCreated,
		Pickup:       in.Pickup,
		Dropoff:      in.Dropoff,
		RiderName:    in.RiderName,
		RiderContact: in.RiderContact,
		History: []ride.HistoryEntry{{
			Status: ride.StatusCreated,
			Actor:  actor,
			At:     time.Now().UTC(),
		}},
	}

	if err := eng.rides.CreateRide(ctx, rd); err != nil {
		return nil, fmt.Errorf("hail/engine: create ride: %w", err)
	}

	eng.logger.Info("ride created",
		slog.String("ride_id", rd.ID.String()),
		slog.Int64("ride_number", rd.Number),
	)
	return rd, nil
}

// Broadcast dispatches the ride to the driver pool. A fresh claim token
// is bound to the ride before every broadcast, so only answers to the
// latest broadcast can claim. On delivery failure a created ride is
// parked as undeliverable; a sent ride keeps its status and stays open
// for claims on the previous delivery.
func (eng *Engine) Broadcast(ctx context.Context, rideID id.RideID) (*ride.Ride, error) {
	rd, err := eng.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(ride.BroadcastableStatuses(), rd.Status) {
		return nil, fmt.Errorf("%w: cannot broadcast in %q", hail.ErrInvalidTransition, rd.Status)
	}

	// Rotate the token before the send so the outbound message carries
	// the token the arbitrator will accept.
	prevToken := rd.ClaimToken
	rd.ClaimToken = ride.NewClaimToken()
	if err := eng.rides.UpdateRide(ctx, rd); err != nil {
		return nil, fmt.Errorf("hail/engine: rotate claim token: %w", err)
	}

	res, dispatchErr := eng.router.Dispatch(ctx, rd)
	if dispatchErr != nil {
		// A sent ride stays open for claims on the previous delivery, so
		// the token those drivers hold must stay valid. The new token was
		// never delivered to anyone.
		if rd.Status == ride.StatusSent && prevToken != "" {
			rd.ClaimToken = prevToken
			if restoreErr := eng.rides.UpdateRide(ctx, rd); restoreErr != nil {
				eng.logger.Error("claim token restore failed",
					slog.String("ride_id", rd.ID.String()),
					slog.String("error", restoreErr.Error()),
				)
			}
		}
		return nil, eng.handleUndeliverable(ctx, rd, dispatchErr)
	}

	updated, err := eng.rides.Transition(ctx, rd.ID, ride.BroadcastableStatuses(), ride.Patch{
		Status:             ride.StatusSent,
		DispatchMethod:     &res.ChannelUsed,
		IncrementBroadcast: true,
		History: &ride.HistoryEntry{
			Status: ride.StatusSent,
			Actor:  "system",
			Detail: "broadcast via " + res.ChannelUsed,
			At:     time.Now().UTC(),
		},
	})
	if err != nil {
		if errors.Is(err, hail.ErrStateConflict) {
			// A claim landed between the send and the commit. The claim
			// wins; the broadcast was still delivered.
			return eng.rides.GetRide(ctx, rd.ID)
		}
		return nil, err
	}

	// Delivery committed: a previously parked entry is now handled.
	eng.resolveParked(ctx, updated.ID, undelivered.ResolutionRedispatched)

	eng.logger.Info("ride broadcast",
		slog.String("ride_id", updated.ID.String()),
		slog.Int64("ride_number", updated.Number),
		slog.String("channel", res.ChannelUsed),
		slog.Duration("latency", res.Latency),
	)
	eng.extensions.EmitRideBroadcast(ctx, updated, res.ChannelUsed)
	return updated, nil
}

// handleUndeliverable records an exhausted dispatch. Only a created ride
// changes status; sent rides stay claimable on the previous delivery and
// parked rides stay parked.
func (eng *Engine) handleUndeliverable(ctx context.Context, rd *ride.Ride, dispatchErr error) error {
	if rd.Status == ride.StatusCreated {
		updated, err := eng.rides.Transition(ctx, rd.ID, []ride.Status{ride.StatusCreated}, ride.Patch{
			Status: ride.StatusUndeliverable,
			History: &ride.HistoryEntry{
				Status: ride.StatusUndeliverable,
				Actor:  "system",
				Detail: dispatchErr.Error(),
				At:     time.Now().UTC(),
			},
		})
		if err == nil {
			rd = updated
		} else if !errors.Is(err, hail.ErrStateConflict) {
			eng.logger.Error("park transition failed",
				slog.String("ride_id", rd.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, parkErr := eng.parked.Park(ctx, rd, eng.attemptedChannel(), eng.c.Config().MaxSendAttempts, dispatchErr); parkErr != nil {
		eng.logger.Error("park entry failed",
			slog.String("ride_id", rd.ID.String()),
			slog.String("error", parkErr.Error()),
		)
	}
	eng.extensions.EmitRideUndeliverable(ctx, rd, dispatchErr)
	return dispatchErr
}

// attemptedChannel names the channel (or mode) that just failed, for the
// park record.
func (eng *Engine) attemptedChannel() string {
	return string(eng.router.Mode())
}

// Advance moves a ride one lifecycle step forward on behalf of an
// operator: confirm from locked, advance through the trip, commission
// settlement after finish.
func (eng *Engine) Advance(ctx context.Context, rideID id.RideID, actor string) (*ride.Ride, error) {
	rd, err := eng.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return eng.advance(ctx, rd, actor)
}

// AdvanceActive moves the driver's active ride one step forward. This is
// the webhook "1" command.
func (eng *Engine) AdvanceActive(ctx context.Context, d *driver.Driver) (*ride.Ride, error) {
	rd, err := eng.rides.FindActiveRideByDriver(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return eng.advance(ctx, rd, d.ID.String())
}

func (eng *Engine) advance(ctx context.Context, rd *ride.Ride, actor string) (*ride.Ride, error) {
	event, err := ride.ForwardEvent(rd.Status)
	if err != nil {
		return nil, err
	}
	next, err := ride.Next(rd.Status, event)
	if err != nil {
		return nil, err
	}

	updated, err := eng.rides.Transition(ctx, rd.ID, []ride.Status{rd.Status}, ride.Patch{
		Status: next,
		History: &ride.HistoryEntry{
			Status: next,
			Actor:  actor,
			Detail: string(event),
			At:     time.Now().UTC(),
		},
	})
	if err != nil {
		return nil, err
	}

	eng.extensions.EmitRideAdvanced(ctx, updated, rd.Status)

	// Completion bumps the driver's counter. Best-effort: the transition
	// is already committed.
	if next == ride.StatusFinished && !updated.Claimant.IsNil() {
		if statErr := eng.drivers.IncrementDriverStat(ctx, updated.Claimant, driver.StatCompleted); statErr != nil {
			eng.logger.Warn("driver stat increment failed",
				slog.String("driver_id", updated.Claimant.String()),
				slog.String("error", statErr.Error()),
			)
		}
	}

	eng.logger.Info("ride advanced",
		slog.String("ride_id", updated.ID.String()),
		slog.String("from", string(rd.Status)),
		slog.String("to", string(next)),
		slog.String("actor", actor),
	)
	return updated, nil
}

// Confirm moves a locked ride to assigned. Equivalent to Advance from
// locked; rejects any other status, so an operator cannot accidentally
// advance a trip in progress.
func (eng *Engine) Confirm(ctx context.Context, rideID id.RideID, actor string) (*ride.Ride, error) {
	rd, err := eng.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if rd.Status != ride.StatusLocked {
		return nil, fmt.Errorf("%w: cannot confirm in %q", hail.ErrInvalidTransition, rd.Status)
	}
	return eng.advance(ctx, rd, actor)
}

// CancelActive cancels the driver's active ride. This is the webhook "0"
// command.
func (eng *Engine) CancelActive(ctx context.Context, d *driver.Driver) (*ride.Ride, error) {
	rd, err := eng.rides.FindActiveRideByDriver(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return eng.cancel(ctx, rd, d.ID.String())
}

// Cancel cancels a ride on behalf of an operator. Legal from any
// non-terminal status except finished.
func (eng *Engine) Cancel(ctx context.Context, rideID id.RideID, actor string) (*ride.Ride, error) {
	rd, err := eng.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return eng.cancel(ctx, rd, actor)
}

func (eng *Engine) cancel(ctx context.Context, rd *ride.Ride, actor string) (*ride.Ride, error) {
	if !ride.Cancellable(rd.Status) {
		return nil, fmt.Errorf("%w: cannot cancel in %q", hail.ErrInvalidTransition, rd.Status)
	}

	updated, err := eng.rides.Transition(ctx, rd.ID, []ride.Status{rd.Status}, ride.Patch{
		Status: ride.StatusCancelled,
		History: &ride.HistoryEntry{
			Status: ride.StatusCancelled,
			Actor:  actor,
			At:     time.Now().UTC(),
		},
	})
	if err != nil {
		return nil, err
	}

	// A cancelled ride no longer needs redispatching.
	eng.resolveParked(ctx, updated.ID, undelivered.ResolutionCancelled)

	eng.logger.Info("ride cancelled",
		slog.String("ride_id", updated.ID.String()),
		slog.String("actor", actor),
	)
	eng.extensions.EmitRideCancelled(ctx, updated, actor)
	return updated, nil
}

// Unlock reverts a locked ride to sent, clearing the claimant. The claim
// token is kept, so drivers answering the original broadcast can still
// claim. Operator action for stuck locks.
func (eng *Engine) Unlock(ctx context.Context, rideID id.RideID, actor string) (*ride.Ride, error) {
	updated, err := eng.rides.Transition(ctx, rideID, []ride.Status{ride.StatusLocked}, ride.Patch{
		Status:        ride.StatusSent,
		ClearClaimant: true,
		ClearLockedAt: true,
		History: &ride.HistoryEntry{
			Status: ride.StatusSent,
			Actor:  actor,
			Detail: "unlocked",
			At:     time.Now().UTC(),
		},
	})
	if err != nil {
		if errors.Is(err, hail.ErrStateConflict) {
			return nil, fmt.Errorf("%w: ride is not locked", hail.ErrInvalidTransition)
		}
		return nil, err
	}

	eng.logger.Info("ride unlocked",
		slog.String("ride_id", updated.ID.String()),
		slog.String("actor", actor),
	)
	eng.extensions.EmitRideUnlocked(ctx, updated)
	return updated, nil
}

// Redispatch rebroadcasts a parked ride and resolves its park entry.
func (eng *Engine) Redispatch(ctx context.Context, entryID id.UndeliveredID) (*ride.Ride, error) {
	e, err := eng.parked.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.Resolved {
		return nil, fmt.Errorf("%w: entry %s already resolved", hail.ErrStateConflict, entryID)
	}
	return eng.Broadcast(ctx, e.RideID)
}

// resolveParked closes any open park entry for the ride. Best-effort;
// absence of an entry is the common case.
func (eng *Engine) resolveParked(ctx context.Context, rideID id.RideID, resolution string) {
	e, err := eng.parked.Find(ctx, rideID)
	if err != nil || e == nil || e.Resolved {
		return
	}
	if err := eng.parked.Resolve(ctx, e.ID, resolution); err != nil {
		eng.logger.Warn("park entry resolve failed",
			slog.String("entry_id", e.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Start begins health monitoring via the Coordinator.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.c.Start(ctx)
}

// Stop gracefully shuts down the engine via the Coordinator.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.c.Stop(ctx)
}

// WebhookHandler returns the full webhook pipeline: middleware chain
// plus the terminal processor. The transport layer feeds envelopes here.
func (eng *Engine) WebhookHandler() webhook.Handler { return eng.handler }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Router returns the dispatch router.
func (eng *Engine) Router() *router.Router { return eng.router }

// Monitor returns the channel health monitor.
func (eng *Engine) Monitor() *channel.Monitor { return eng.monitor }

// Arbitrator returns the claim arbitrator.
func (eng *Engine) Arbitrator() *claim.Arbitrator { return eng.arbitrator }

// Undelivered returns the park bookkeeping service.
func (eng *Engine) Undelivered() *undelivered.Service { return eng.parked }

// Broker returns the real-time stream broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Rides returns the ride store.
func (eng *Engine) Rides() ride.Store { return eng.rides }

// Drivers returns the driver store.
func (eng *Engine) Drivers() driver.Store { return eng.drivers }

// Coordinator returns the underlying Coordinator.
func (eng *Engine) Coordinator() *hail.Coordinator { return eng.c }
