// Package router implements dispatch routing and failover: picking an
// outbound channel by mode and health, retrying the same channel with
// bounded backoff, and failing over at most once per dispatch.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/hail"
	"github.com/xraph/hail/backoff"
	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/ride"
)

// Result describes a successful dispatch.
type Result struct {
	// ChannelUsed is the name of the channel that delivered the
	// broadcast.
	ChannelUsed string `json:"channel_used"`

	// Latency is the duration of the successful send attempt.
	Latency time.Duration `json:"latency"`

	// Receipt is the provider acknowledgment.
	Receipt *channel.Receipt `json:"receipt,omitempty"`
}

// Sleeper waits for d or until ctx is done. Injectable so tests can use
// a fake clock instead of real sleeps.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ModeEmitter receives mode-switch notifications. ext.Registry satisfies
// it via EmitModeSwitched.
type ModeEmitter interface {
	EmitModeSwitched(ctx context.Context, from, to string)
}

// Router picks a channel per dispatch and drives the retry/failover
// sequence. Safe for concurrent use; the only mutable state is the mode
// and the per-channel limiters, both behind the mutex.
type Router struct {
	primary   channel.Channel
	secondary channel.Channel
	monitor   *channel.Monitor
	policy    backoff.Policy
	timeout   time.Duration
	sleep     Sleeper
	emitter   ModeEmitter
	logger    *slog.Logger

	mu       sync.RWMutex
	mode     Mode
	limiters map[string]*rate.Limiter
}

// Option configures a Router.
type Option func(*Router)

// WithPolicy sets the retry policy for send attempts.
func WithPolicy(p backoff.Policy) Option {
	return func(r *Router) { r.policy = p }
}

// WithSendTimeout sets the per-attempt deadline. Mandatory bound: a
// hanging provider can never hold a dispatch call past
// MaxAttempts x timeout plus one failover attempt.
func WithSendTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithSleeper replaces the retry sleeper. Tests inject a fake clock.
func WithSleeper(s Sleeper) Option {
	return func(r *Router) { r.sleep = s }
}

// WithMode sets the initial dispatch mode.
func WithMode(m Mode) Option {
	return func(r *Router) { r.mode = m }
}

// WithModeEmitter registers a hook for operator mode switches.
func WithModeEmitter(e ModeEmitter) Option {
	return func(r *Router) { r.emitter = e }
}

// WithRateLimit throttles outbound sends on one channel. Waiting counts
// against the attempt's deadline.
func WithRateLimit(channelName string, limit rate.Limit, burst int) Option {
	return func(r *Router) {
		r.limiters[channelName] = rate.NewLimiter(limit, burst)
	}
}

// New creates a Router over the primary and secondary channels.
// secondary may be nil when only one channel is deployed.
func New(primary, secondary channel.Channel, monitor *channel.Monitor, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		primary:   primary,
		secondary: secondary,
		monitor:   monitor,
		policy:    backoff.Default(),
		timeout:   10 * time.Second,
		sleep:     defaultSleeper,
		logger:    logger,
		mode:      ModeAuto,
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the current dispatch mode.
func (r *Router) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SwitchMode changes routing for all future dispatch decisions
// immediately. Operator action; logged and emitted to hooks.
func (r *Router) SwitchMode(ctx context.Context, m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}

	r.mu.Lock()
	from := r.mode
	r.mode = m
	r.mu.Unlock()

	r.logger.Info("dispatch mode switched",
		slog.String("from", string(from)),
		slog.String("to", string(m)),
	)
	if r.emitter != nil {
		r.emitter.EmitModeSwitched(ctx, string(from), string(m))
	}
	return nil
}

// ResetStats zeroes channel counters without touching health flags.
func (r *Router) ResetStats() {
	r.monitor.ResetStats()
	r.logger.Info("channel stats reset")
}

// Dispatch broadcasts the ride through the selected channel.
//
// Forced modes use their channel regardless of health — the operator
// explicitly accepted the risk. Auto picks the primary when healthy,
// else the secondary. Retries stay on the chosen channel; the single
// automatic channel switch is the one failover attempt after the chosen
// channel's budget is exhausted in auto mode.
func (r *Router) Dispatch(ctx context.Context, rd *ride.Ride) (*Result, error) {
	chosen, alternate := r.pick()
	if chosen == nil {
		return nil, hail.ErrChannelUnavailable
	}

	res, err := r.attemptWithRetries(ctx, chosen, rd)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, hail.ErrSendRejected) {
		// Hard rejection: not retried, not failed over.
		return nil, err
	}

	r.monitor.ReportFailure(chosen.Name())

	if r.Mode() == ModeAuto && alternate != nil && r.monitor.IsHealthy(alternate.Name()) {
		r.logger.Warn("failing over",
			slog.String("from", chosen.Name()),
			slog.String("to", alternate.Name()),
			slog.String("ride_id", rd.ID.String()),
		)
		res, foErr := r.attemptOnce(ctx, alternate, rd)
		if foErr == nil {
			return res, nil
		}
		r.monitor.ReportFailure(alternate.Name())
		return nil, fmt.Errorf("%w: failover to %s failed: %v", hail.ErrChannelUnavailable, alternate.Name(), foErr)
	}

	return nil, fmt.Errorf("%w: %s exhausted: %v", hail.ErrChannelUnavailable, chosen.Name(), err)
}

// pick returns the channel to use and the failover alternate (nil when
// no failover applies).
func (r *Router) pick() (chosen, alternate channel.Channel) {
	switch r.Mode() {
	case ModePrimaryOnly:
		return r.primary, nil
	case ModeSecondaryOnly:
		return r.secondary, nil
	default:
		if r.monitor.IsHealthy(r.primary.Name()) || r.secondary == nil {
			return r.primary, r.secondary
		}
		return r.secondary, r.primary
	}
}

// attemptWithRetries runs the full retry budget against one channel.
// Every retry is a fresh attempt against the same channel.
func (r *Router) attemptWithRetries(ctx context.Context, ch channel.Channel, rd *ride.Ride) (*Result, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		res, err := r.attemptOnce(ctx, ch, rd)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, hail.ErrSendRejected) {
			return nil, err
		}
		lastErr = err

		if r.policy.Exhausted(attempt) {
			return nil, lastErr
		}

		r.logger.Debug("send attempt failed, retrying",
			slog.String("channel", ch.Name()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if sleepErr := r.sleep(ctx, r.policy.Delay(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
}

// attemptOnce runs a single bounded send attempt and records the outcome
// in the channel's stats, success or failure.
func (r *Router) attemptOnce(ctx context.Context, ch channel.Channel, rd *ride.Ride) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if lim := r.limiter(ch.Name()); lim != nil {
		if err := lim.Wait(attemptCtx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", hail.ErrSendTimeout, err)
		}
	}

	start := time.Now()
	receipt, err := ch.Send(attemptCtx, rd)
	latency := time.Since(start)

	if stats := r.monitor.Stats(ch.Name()); stats != nil {
		stats.RecordAttempt(err == nil, latency)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %v", hail.ErrSendTimeout, ch.Name(), latency)
		}
		return nil, err
	}

	return &Result{ChannelUsed: ch.Name(), Latency: latency, Receipt: receipt}, nil
}

func (r *Router) limiter(name string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[name]
}
