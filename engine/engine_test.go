package engine_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/channel"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/engine"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/router"
	"github.com/xraph/hail/store/memory"
	"github.com/xraph/hail/stream"
	"github.com/xraph/hail/undelivered"
	"github.com/xraph/hail/webhook"
)

// fakeChannel is an in-test outbound channel. Flip fail to simulate a
// provider outage; Send and HealthCheck both honor it.
type fakeChannel struct {
	name  string
	fail  atomic.Bool
	sends atomic.Int64

	mu        sync.Mutex
	lastToken string
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, r *ride.Ride) (*channel.Receipt, error) {
	c.sends.Add(1)
	if c.fail.Load() {
		return nil, errors.New("provider down")
	}
	c.mu.Lock()
	c.lastToken = r.ClaimToken
	c.mu.Unlock()
	return &channel.Receipt{Recipients: 5}, nil
}

func (c *fakeChannel) HealthCheck(context.Context) bool { return !c.fail.Load() }

func (c *fakeChannel) sentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastToken
}

type harness struct {
	eng       *engine.Engine
	store     *memory.Store
	primary   *fakeChannel
	secondary *fakeChannel
}

func build(t *testing.T, opts ...engine.Option) *harness {
	t.Helper()

	st := memory.New()
	c, err := hail.New(
		hail.WithStore(st),
		hail.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	primary := &fakeChannel{name: channel.Primary}
	secondary := &fakeChannel{name: channel.Secondary}

	// No real sleeps between retries.
	opts = append(opts, engine.WithRouterOptions(
		router.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	))

	eng, err := engine.Build(c, primary, secondary, opts...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return &harness{eng: eng, store: st, primary: primary, secondary: secondary}
}

func (h *harness) createDriver(t *testing.T, phone string) *driver.Driver {
	t.Helper()
	d := &driver.Driver{
		Entity:               hail.NewEntity(),
		ID:                   id.NewDriverID(),
		Name:                 "Sam",
		Phone:                phone,
		IsActive:             true,
		RegistrationApproved: true,
	}
	if err := h.store.UpsertDriver(context.Background(), d); err != nil {
		t.Fatalf("upsert driver: %v", err)
	}
	return d
}

func (h *harness) createAndBroadcast(t *testing.T) *ride.Ride {
	t.Helper()
	ctx := context.Background()
	rd, err := h.eng.CreateRide(ctx, engine.CreateRideInput{Pickup: "Main St 1", Dropoff: "Airport"})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	sent, err := h.eng.Broadcast(ctx, rd.ID)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	return sent
}

var msgSeq atomic.Int64

// envelope builds a webhook envelope with a unique message ID so the
// dedupe middleware never collapses separate test messages.
func envelope(sender, body string) *webhook.Envelope {
	return &webhook.Envelope{
		MessageID:  fmt.Sprintf("msg-%d", msgSeq.Add(1)),
		Sender:     sender,
		Body:       body,
		Channel:    channel.Primary,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestBuild_RequiresStore(t *testing.T) {
	t.Parallel()

	c, err := hail.New(hail.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	_, err = engine.Build(c, &fakeChannel{name: channel.Primary}, nil)
	if !errors.Is(err, hail.ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
}

func TestCreateRide(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	rd, err := h.eng.CreateRide(ctx, engine.CreateRideInput{Pickup: "A", Dropoff: "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rd.Status != ride.StatusCreated {
		t.Errorf("status: got %s, want created", rd.Status)
	}
	if rd.Number != 1 {
		t.Errorf("number: got %d, want 1", rd.Number)
	}
	if len(rd.History) != 1 || rd.History[0].Actor != "operator" {
		t.Errorf("history: %+v", rd.History)
	}

	if _, err := h.eng.CreateRide(ctx, engine.CreateRideInput{Pickup: "A"}); err == nil {
		t.Error("expected validation error for missing dropoff")
	}
}

func TestBroadcast_DeliversAndCommits(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	rd := h.createAndBroadcast(t)

	if rd.Status != ride.StatusSent {
		t.Errorf("status: got %s, want sent", rd.Status)
	}
	if rd.DispatchMethod != channel.Primary {
		t.Errorf("dispatch method: got %q, want primary", rd.DispatchMethod)
	}
	if rd.BroadcastCount != 1 {
		t.Errorf("broadcast count: got %d, want 1", rd.BroadcastCount)
	}
	if h.primary.sends.Load() != 1 {
		t.Errorf("primary sends: got %d, want 1", h.primary.sends.Load())
	}
	if h.secondary.sends.Load() != 0 {
		t.Errorf("secondary must not be touched, got %d sends", h.secondary.sends.Load())
	}

	// The outbound message carried the token the store will accept.
	if h.primary.sentToken() != rd.ClaimToken {
		t.Error("broadcast message token does not match stored token")
	}
	if _, err := h.store.FindRideByToken(ctx, rd.ClaimToken); err != nil {
		t.Errorf("token should resolve: %v", err)
	}
}

func TestBroadcast_RotatesTokenPerBroadcast(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	first := h.createAndBroadcast(t)
	again, err := h.eng.Broadcast(ctx, first.ID)
	if err != nil {
		t.Fatalf("rebroadcast: %v", err)
	}

	if again.ClaimToken == first.ClaimToken {
		t.Error("rebroadcast must rotate the claim token")
	}
	if again.BroadcastCount != 2 {
		t.Errorf("broadcast count: got %d, want 2", again.BroadcastCount)
	}
	if _, err := h.store.FindRideByToken(ctx, first.ClaimToken); !errors.Is(err, hail.ErrRideNotFound) {
		t.Errorf("stale token should be dead, got %v", err)
	}
}

func TestBroadcast_FailsOverToSecondary(t *testing.T) {
	t.Parallel()
	h := build(t)

	h.primary.fail.Store(true)
	rd := h.createAndBroadcast(t)

	if rd.Status != ride.StatusSent {
		t.Errorf("status: got %s, want sent", rd.Status)
	}
	if rd.DispatchMethod != channel.Secondary {
		t.Errorf("dispatch method: got %q, want secondary", rd.DispatchMethod)
	}
	if rd.BroadcastCount != 1 {
		t.Errorf("broadcast count: got %d, want 1", rd.BroadcastCount)
	}
	if h.secondary.sends.Load() != 1 {
		t.Errorf("secondary sends: got %d, want 1", h.secondary.sends.Load())
	}
}

func TestBroadcast_FailedRebroadcastKeepsPreviousToken(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	d := h.createDriver(t, "+15550701")
	rd := h.createAndBroadcast(t)
	token := rd.ClaimToken

	// Provider outage hits between the first delivery and the rebroadcast.
	h.primary.fail.Store(true)
	h.secondary.fail.Store(true)
	if _, err := h.eng.Broadcast(ctx, rd.ID); err == nil {
		t.Fatal("expected dispatch error")
	}

	got, err := h.store.GetRide(ctx, rd.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != ride.StatusSent {
		t.Errorf("status: got %s, want sent", got.Status)
	}
	// The rotated token was never delivered; drivers still hold the one
	// from the first broadcast, so it must stay bound to the ride.
	if got.ClaimToken != token {
		t.Error("failed rebroadcast invalidated the delivered token")
	}

	res, err := h.eng.Arbitrator().Claim(ctx, token, d)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !res.Won() {
		t.Errorf("claim on the delivered token should win, got %s", res.Outcome)
	}
}

func TestBroadcast_IllegalFromLocked(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	rd := h.createAndBroadcast(t)
	d := h.createDriver(t, "+15550100")
	if _, err := h.eng.Arbitrator().Claim(ctx, rd.ClaimToken, d); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := h.eng.Broadcast(ctx, rd.ID); !errors.Is(err, hail.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestBroadcast_ExhaustionParksRide(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	h.primary.fail.Store(true)
	h.secondary.fail.Store(true)

	rd, err := h.eng.CreateRide(ctx, engine.CreateRideInput{Pickup: "A", Dropoff: "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.eng.Broadcast(ctx, rd.ID); err == nil {
		t.Fatal("expected dispatch error")
	}

	parked, err := h.store.GetRide(ctx, rd.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if parked.Status != ride.StatusUndeliverable {
		t.Errorf("status: got %s, want undeliverable", parked.Status)
	}

	entry, err := h.eng.Undelivered().Find(ctx, rd.ID)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}
	if entry.Resolved {
		t.Error("fresh park entry must be open")
	}

	// A second failed broadcast must not stack entries.
	if _, err := h.eng.Broadcast(ctx, rd.ID); err == nil {
		t.Fatal("expected dispatch error")
	}
	open, err := h.eng.Undelivered().OpenCount(ctx)
	if err != nil || open != 1 {
		t.Errorf("open entries: got %d (%v), want 1", open, err)
	}
}

func TestRedispatch_RecoversParkedRide(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	h.primary.fail.Store(true)
	h.secondary.fail.Store(true)

	rd, err := h.eng.CreateRide(ctx, engine.CreateRideInput{Pickup: "A", Dropoff: "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.eng.Broadcast(ctx, rd.ID); err == nil {
		t.Fatal("expected dispatch error")
	}
	entry, err := h.eng.Undelivered().Find(ctx, rd.ID)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}

	// Provider recovers.
	h.primary.fail.Store(false)
	h.secondary.fail.Store(false)

	sent, err := h.eng.Redispatch(ctx, entry.ID)
	if err != nil {
		t.Fatalf("redispatch: %v", err)
	}
	if sent.Status != ride.StatusSent {
		t.Errorf("status: got %s, want sent", sent.Status)
	}

	resolved, err := h.eng.Undelivered().Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !resolved.Resolved || resolved.Resolution != undelivered.ResolutionRedispatched {
		t.Errorf("entry not resolved as redispatched: %+v", resolved)
	}

	// Redispatching a resolved entry is refused.
	if _, err := h.eng.Redispatch(ctx, entry.ID); !errors.Is(err, hail.ErrStateConflict) {
		t.Errorf("expected ErrStateConflict, got %v", err)
	}
}

func TestWebhook_FullRideLifecycle(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()
	handler := h.eng.WebhookHandler()

	winner := h.createDriver(t, "+15550201")
	loser := h.createDriver(t, "+15550202")
	rd := h.createAndBroadcast(t)

	// Winner claims by texting the ride code.
	reply, err := handler.Handle(ctx, envelope(winner.Phone, rd.ClaimToken))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !strings.Contains(reply.Text, "is yours") {
		t.Fatalf("unexpected claim reply: %q", reply.Text)
	}

	locked, err := h.store.GetRide(ctx, rd.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if locked.Status != ride.StatusLocked || locked.Claimant.String() != winner.ID.String() {
		t.Fatalf("ride not locked by winner: status=%s claimant=%s", locked.Status, locked.Claimant)
	}

	// The loser is told, politely, that they lost.
	reply, err = handler.Handle(ctx, envelope(loser.Phone, rd.ClaimToken))
	if err != nil {
		t.Fatalf("losing claim: %v", err)
	}
	if !strings.Contains(reply.Text, "Too late") {
		t.Errorf("unexpected loser reply: %q", reply.Text)
	}

	// "1" walks the ride forward: locked → assigned → enroute →
	// arrived → finished → commission_paid.
	want := []ride.Status{
		ride.StatusAssigned, ride.StatusEnroute, ride.StatusArrived,
		ride.StatusFinished, ride.StatusCommissionPaid,
	}
	for _, expect := range want {
		if _, err := handler.Handle(ctx, envelope(winner.Phone, "1")); err != nil {
			t.Fatalf("advance to %s: %v", expect, err)
		}
		got, err := h.store.GetRide(ctx, rd.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != expect {
			t.Fatalf("status: got %s, want %s", got.Status, expect)
		}
	}

	// Settled ride: a further "1" has nothing to advance.
	reply, err = handler.Handle(ctx, envelope(winner.Phone, "1"))
	if err != nil {
		t.Fatalf("post-settle advance: %v", err)
	}
	if !strings.Contains(reply.Text, "no active ride") {
		t.Errorf("unexpected reply: %q", reply.Text)
	}

	// Claim and completion both counted.
	stats, err := h.store.GetDriver(ctx, winner.ID)
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if stats.RidesClaimed != 1 || stats.RidesCompleted != 1 {
		t.Errorf("driver stats: claimed=%d completed=%d, want 1/1", stats.RidesClaimed, stats.RidesCompleted)
	}
}

func TestWebhook_ReplayedClaimIsIdempotent(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()
	handler := h.eng.WebhookHandler()

	d := h.createDriver(t, "+15550301")
	rd := h.createAndBroadcast(t)

	first, err := handler.Handle(ctx, envelope(d.Phone, rd.ClaimToken))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Same driver, new message ID: the arbitrator replays the win.
	second, err := handler.Handle(ctx, envelope(d.Phone, rd.ClaimToken))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.Text != second.Text {
		t.Errorf("replay reply differs: %q vs %q", first.Text, second.Text)
	}

	stats, _ := h.store.GetDriver(ctx, d.ID)
	if stats.RidesClaimed != 1 {
		t.Errorf("claim counted %d times, want 1", stats.RidesClaimed)
	}
}

func TestWebhook_CancelActive(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()
	handler := h.eng.WebhookHandler()

	d := h.createDriver(t, "+15550401")
	rd := h.createAndBroadcast(t)

	if _, err := handler.Handle(ctx, envelope(d.Phone, rd.ClaimToken)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	reply, err := handler.Handle(ctx, envelope(d.Phone, "0"))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(reply.Text, "cancelled") {
		t.Errorf("unexpected reply: %q", reply.Text)
	}

	got, _ := h.store.GetRide(ctx, rd.ID)
	if got.Status != ride.StatusCancelled {
		t.Errorf("status: got %s, want cancelled", got.Status)
	}
}

func TestWebhook_UnknownSender(t *testing.T) {
	t.Parallel()
	h := build(t)

	reply, err := h.eng.WebhookHandler().Handle(context.Background(), envelope("+19999999", "1"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(reply.Text, "not registered") {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
}

func TestUnlock_ReturnsRideToPool(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	first := h.createDriver(t, "+15550501")
	second := h.createDriver(t, "+15550502")
	rd := h.createAndBroadcast(t)

	if _, err := h.eng.Arbitrator().Claim(ctx, rd.ClaimToken, first); err != nil {
		t.Fatalf("claim: %v", err)
	}

	unlocked, err := h.eng.Unlock(ctx, rd.ID, "operator")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if unlocked.Status != ride.StatusSent || !unlocked.Claimant.IsNil() {
		t.Fatalf("unlock left status=%s claimant=%s", unlocked.Status, unlocked.Claimant)
	}
	if unlocked.LockedAt != nil {
		t.Error("locked_at not cleared")
	}

	// Token survives the unlock, so drivers answering the original
	// broadcast can still claim.
	res, err := h.eng.Arbitrator().Claim(ctx, rd.ClaimToken, second)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !res.Won() {
		t.Errorf("reclaim after unlock should win, got %s", res.Outcome)
	}

	// Unlocking a ride that is not locked is refused.
	if _, err := h.eng.Unlock(ctx, rd.ID, "operator"); err == nil {
		t.Error("expected error unlocking a non-locked ride")
	}
}

func TestConfirm_LockedOnly(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	d := h.createDriver(t, "+15550601")
	rd := h.createAndBroadcast(t)

	// Confirming before any driver has claimed is refused.
	if _, err := h.eng.Confirm(ctx, rd.ID, "operator"); !errors.Is(err, hail.ErrInvalidTransition) {
		t.Errorf("confirm on sent ride: expected ErrInvalidTransition, got %v", err)
	}

	if _, err := h.eng.Arbitrator().Claim(ctx, rd.ClaimToken, d); err != nil {
		t.Fatalf("claim: %v", err)
	}

	confirmed, err := h.eng.Confirm(ctx, rd.ID, "operator")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != ride.StatusAssigned {
		t.Errorf("status: got %s, want assigned", confirmed.Status)
	}

	// A second confirm must not push the ride past assigned.
	if _, err := h.eng.Confirm(ctx, rd.ID, "operator"); !errors.Is(err, hail.ErrInvalidTransition) {
		t.Errorf("confirm on assigned ride: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancel_Operator(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	rd := h.createAndBroadcast(t)

	cancelled, err := h.eng.Cancel(ctx, rd.ID, "operator")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != ride.StatusCancelled {
		t.Errorf("status: got %s, want cancelled", cancelled.Status)
	}

	if _, err := h.eng.Cancel(ctx, rd.ID, "operator"); !errors.Is(err, hail.ErrInvalidTransition) {
		t.Errorf("cancelling a terminal ride: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancel_ResolvesParkEntry(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	h.primary.fail.Store(true)
	h.secondary.fail.Store(true)

	rd, err := h.eng.CreateRide(ctx, engine.CreateRideInput{Pickup: "A", Dropoff: "B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.eng.Broadcast(ctx, rd.ID); err == nil {
		t.Fatal("expected dispatch error")
	}

	if _, err := h.eng.Cancel(ctx, rd.ID, "operator"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	entry, err := h.eng.Undelivered().Find(ctx, rd.ID)
	if !errors.Is(err, hail.ErrUndeliveredNotFound) {
		t.Errorf("open entry should be resolved, got entry=%v err=%v", entry, err)
	}
}

func TestModeSwitch_ReachesStreamBroker(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	sub := h.eng.Broker().Subscribe("ops-board", stream.TopicFirehose)
	defer h.eng.Broker().RemoveSubscriber("ops-board")

	if err := h.eng.Router().SwitchMode(ctx, router.ModeSecondaryOnly); err != nil {
		t.Fatalf("switch mode: %v", err)
	}

	select {
	case evt := <-sub.C():
		if evt.Type != stream.EventModeSwitched {
			t.Errorf("event type: got %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered to subscriber")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	h := build(t)
	ctx := context.Background()

	if err := h.eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.eng.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
