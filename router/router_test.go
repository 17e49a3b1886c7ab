package router_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/backoff"
	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/router"
)

// scriptedChannel fails the first failures sends, then succeeds.
type scriptedChannel struct {
	name     string
	failures int
	failWith error
	sends    atomic.Int64
	checks   atomic.Int64
}

func (s *scriptedChannel) Name() string { return s.name }

func (s *scriptedChannel) Send(_ context.Context, _ *ride.Ride) (*channel.Receipt, error) {
	n := s.sends.Add(1)
	if int(n) <= s.failures {
		if s.failWith != nil {
			return nil, s.failWith
		}
		return nil, fmt.Errorf("provider 503")
	}
	return &channel.Receipt{ProviderMessageID: fmt.Sprintf("%s-%d", s.name, n)}, nil
}

func (s *scriptedChannel) HealthCheck(_ context.Context) bool {
	s.checks.Add(1)
	return true
}

// instantSleeper records requested delays without sleeping.
type instantSleeper struct {
	delays []time.Duration
}

func (i *instantSleeper) sleep(_ context.Context, d time.Duration) error {
	i.delays = append(i.delays, d)
	return nil
}

func testRide() *ride.Ride {
	return &ride.Ride{
		Entity:     hail.NewEntity(),
		ID:         id.NewRideID(),
		Number:     7,
		Status:     ride.StatusCreated,
		ClaimToken: ride.NewClaimToken(),
		Pickup:     "A",
		Dropoff:    "B",
	}
}

func newRouter(t *testing.T, primary, secondary channel.Channel, opts ...router.Option) (*router.Router, *channel.Monitor) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	channels := []channel.Channel{primary}
	if secondary != nil {
		channels = append(channels, secondary)
	}
	mon := channel.NewMonitor(logger, channels)

	base := []router.Option{
		router.WithPolicy(backoff.Policy{MaxAttempts: 3, Initial: time.Millisecond, Multiplier: 2}),
		router.WithSendTimeout(time.Second),
		router.WithSleeper((&instantSleeper{}).sleep),
	}
	return router.New(primary, secondary, mon, logger, append(base, opts...)...), mon
}

func TestDispatch_PrimaryHealthySucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{name: channel.Primary}
	secondary := &scriptedChannel{name: channel.Secondary}
	r, mon := newRouter(t, primary, secondary)

	res, err := r.Dispatch(context.Background(), testRide())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.ChannelUsed != channel.Primary {
		t.Errorf("channel used = %q, want primary", res.ChannelUsed)
	}
	if secondary.sends.Load() != 0 {
		t.Error("secondary should not be touched")
	}

	snap := mon.Snapshots()[channel.Primary]
	if snap.Attempts != 1 || snap.Successes != 1 {
		t.Errorf("primary stats = %+v, want 1 attempt 1 success", snap)
	}
}

func TestDispatch_RetriesSameChannelBeforeFailover(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{name: channel.Primary, failures: 2}
	secondary := &scriptedChannel{name: channel.Secondary}
	sleeper := &instantSleeper{}
	r, _ := newRouter(t, primary, secondary, router.WithSleeper(sleeper.sleep))

	res, err := r.Dispatch(context.Background(), testRide())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.ChannelUsed != channel.Primary {
		t.Errorf("channel used = %q; retries must stay on the same channel", res.ChannelUsed)
	}
	if got := primary.sends.Load(); got != 3 {
		t.Errorf("primary sends = %d, want 3", got)
	}
	if secondary.sends.Load() != 0 {
		t.Error("no failover should happen when retries eventually succeed")
	}
	// Exponential delays between the three attempts.
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleeper.delays, want)
	}
	for i := range want {
		if sleeper.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, sleeper.delays[i], want[i])
		}
	}
}

func TestDispatch_FailoverDeterminism(t *testing.T) {
	t.Parallel()

	// Primary fails every attempt; secondary is healthy. Auto mode must
	// succeed via the secondary exactly once.
	primary := &scriptedChannel{name: channel.Primary, failures: 1 << 30}
	secondary := &scriptedChannel{name: channel.Secondary}
	r, _ := newRouter(t, primary, secondary)

	res, err := r.Dispatch(context.Background(), testRide())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.ChannelUsed != channel.Secondary {
		t.Errorf("channel used = %q, want secondary", res.ChannelUsed)
	}
	if got := primary.sends.Load(); got != 3 {
		t.Errorf("primary sends = %d, want full retry budget of 3", got)
	}
	if got := secondary.sends.Load(); got != 1 {
		t.Errorf("secondary sends = %d, want exactly one failover attempt", got)
	}
}

func TestDispatch_ForcedSecondaryNeverTouchesPrimary(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{name: channel.Primary}
	secondary := &scriptedChannel{name: channel.Secondary}
	r, _ := newRouter(t, primary, secondary, router.WithMode(router.ModeSecondaryOnly))

	res, err := r.Dispatch(context.Background(), testRide())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.ChannelUsed != channel.Secondary {
		t.Errorf("channel used = %q, want secondary", res.ChannelUsed)
	}
	if primary.sends.Load() != 0 {
		t.Error("forced secondary mode must never invoke the primary")
	}
}

func TestDispatch_ForcedModeDoesNotFailOver(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{name: channel.Primary, failures: 1 << 30}
	secondary := &scriptedChannel{name: channel.Secondary}
	r, _ := newRouter(t, primary, secondary, router.WithMode(router.ModePrimaryOnly))

	_, err := r.Dispatch(context.Background(), testRide())
	if !errors.Is(err, hail.ErrChannelUnavailable) {
		t.Fatalf("err = %v, want ErrChannelUnavailable", err)
	}
	if secondary.sends.Load() != 0 {
		t.Error("forced primary mode must not fail over")
	}
}

func TestDispatch_HardRejectionNotRetried(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{
		name:     channel.Primary,
		failures: 1 << 30,
		failWith: fmt.Errorf("%w: bad recipient", hail.ErrSendRejected),
	}
	secondary := &scriptedChannel{name: channel.Secondary}
	r, _ := newRouter(t, primary, secondary)

	_, err := r.Dispatch(context.Background(), testRide())
	if !errors.Is(err, hail.ErrSendRejected) {
		t.Fatalf("err = %v, want ErrSendRejected", err)
	}
	if got := primary.sends.Load(); got != 1 {
		t.Errorf("primary sends = %d, hard rejections must not be retried", got)
	}
	if secondary.sends.Load() != 0 {
		t.Error("hard rejections must not fail over")
	}
}

func TestDispatch_AllChannelsExhausted(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{name: channel.Primary, failures: 1 << 30}
	secondary := &scriptedChannel{name: channel.Secondary, failures: 1 << 30}
	r, mon := newRouter(t, primary, secondary)

	_, err := r.Dispatch(context.Background(), testRide())
	if !errors.Is(err, hail.ErrChannelUnavailable) {
		t.Fatalf("err = %v, want ErrChannelUnavailable", err)
	}

	// Failures are recorded win or lose.
	snaps := mon.Snapshots()
	if snaps[channel.Primary].Failures != 3 {
		t.Errorf("primary failures = %d, want 3", snaps[channel.Primary].Failures)
	}
	if snaps[channel.Secondary].Failures != 1 {
		t.Errorf("secondary failures = %d, want 1", snaps[channel.Secondary].Failures)
	}
}

func TestSwitchMode_RejectsUnknownMode(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(t, &scriptedChannel{name: channel.Primary}, nil)

	if err := r.SwitchMode(context.Background(), router.Mode("carrier-pigeon")); !errors.Is(err, hail.ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
}

func TestSwitchMode_TakesEffectImmediately(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{name: channel.Primary}
	secondary := &scriptedChannel{name: channel.Secondary}
	r, _ := newRouter(t, primary, secondary)

	if err := r.SwitchMode(context.Background(), router.ModeSecondaryOnly); err != nil {
		t.Fatalf("switch mode: %v", err)
	}

	res, err := r.Dispatch(context.Background(), testRide())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if res.ChannelUsed != channel.Secondary {
		t.Errorf("channel used = %q after switch, want secondary", res.ChannelUsed)
	}
}

func TestResetStats_KeepsHealthFlags(t *testing.T) {
	t.Parallel()

	primary := &scriptedChannel{name: channel.Primary}
	r, mon := newRouter(t, primary, nil)

	if _, err := r.Dispatch(context.Background(), testRide()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r.ResetStats()

	if got := mon.Snapshots()[channel.Primary].Attempts; got != 0 {
		t.Errorf("attempts after reset = %d, want 0", got)
	}
	if !mon.IsHealthy(channel.Primary) {
		t.Error("reset must not touch health flags")
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"auto", "primary-only", "secondary-only"} {
		if _, err := router.ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) error: %v", s, err)
		}
	}
	if _, err := router.ParseMode("primary"); err == nil {
		t.Error("ParseMode should reject unknown modes")
	}
}
