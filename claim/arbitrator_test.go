package claim_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/xraph/hail"
	"github.com/xraph/hail/claim"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

// fakeRideStore serializes transitions behind a mutex, the same contract
// every production backend provides.
type fakeRideStore struct {
	mu      sync.Mutex
	rides   map[id.RideID]*ride.Ride
	byToken map[string]id.RideID
}

func newFakeRideStore(rides ...*ride.Ride) *fakeRideStore {
	s := &fakeRideStore{
		rides:   make(map[id.RideID]*ride.Ride),
		byToken: make(map[string]id.RideID),
	}
	for _, r := range rides {
		s.rides[r.ID] = r
		s.byToken[r.ClaimToken] = r.ID
	}
	return s
}

func (s *fakeRideStore) FindRideByToken(_ context.Context, token string) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rid, ok := s.byToken[token]
	if !ok {
		return nil, hail.ErrRideNotFound
	}
	cp := *s.rides[rid]
	return &cp, nil
}

func (s *fakeRideStore) GetRide(_ context.Context, rideID id.RideID) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return nil, hail.ErrRideNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRideStore) Transition(_ context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return nil, hail.ErrRideNotFound
	}
	if !slices.Contains(expected, r.Status) {
		return nil, hail.ErrStateConflict
	}
	r.Status = patch.Status
	if patch.Claimant != nil {
		r.Claimant = *patch.Claimant
	}
	if patch.LockedAt != nil {
		r.LockedAt = patch.LockedAt
	}
	if patch.History != nil {
		r.History = append(r.History, *patch.History)
	}
	cp := *r
	return &cp, nil
}

type fakeDriverStore struct {
	mu         sync.Mutex
	increments map[id.DriverID]int
}

func newFakeDriverStore() *fakeDriverStore {
	return &fakeDriverStore{increments: make(map[id.DriverID]int)}
}

func (s *fakeDriverStore) IncrementDriverStat(_ context.Context, driverID id.DriverID, _ driver.StatDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increments[driverID]++
	return nil
}

type recordingEmitter struct {
	mu        sync.Mutex
	claimed   int
	contended int
}

func (e *recordingEmitter) EmitRideClaimed(_ context.Context, _ *ride.Ride, _ *driver.Driver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.claimed++
}

func (e *recordingEmitter) EmitClaimContended(_ context.Context, _ *ride.Ride, _ *driver.Driver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contended++
}

func broadcastRide() *ride.Ride {
	return &ride.Ride{
		Entity:         hail.NewEntity(),
		ID:             id.NewRideID(),
		Number:         42,
		Status:         ride.StatusSent,
		ClaimToken:     ride.NewClaimToken(),
		DispatchMethod: "primary",
		Pickup:         "Airport",
		Dropoff:        "Harbor",
	}
}

func eligibleDriver(name string) *driver.Driver {
	return &driver.Driver{
		Entity:               hail.NewEntity(),
		ID:                   id.NewDriverID(),
		Name:                 name,
		IsActive:             true,
		RegistrationApproved: true,
	}
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	t.Parallel()

	const contenders = 32

	rd := broadcastRide()
	rides := newFakeRideStore(rd)
	drivers := newFakeDriverStore()
	emitter := &recordingEmitter{}
	arb := claim.NewArbitrator(rides, drivers, slog.New(slog.DiscardHandler), claim.WithEmitter(emitter))

	results := make([]*claim.Result, contenders)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range contenders {
		d := eligibleDriver("driver")
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := arb.Claim(context.Background(), rd.ClaimToken, d)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			results[i] = res
		}()
	}
	close(start)
	wg.Wait()

	var wins, losses int
	for _, res := range results {
		switch res.Outcome {
		case claim.OutcomeWon:
			wins++
		case claim.OutcomeAlreadyClaimed:
			losses++
		default:
			t.Errorf("unexpected outcome %q", res.Outcome)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	if losses != contenders-1 {
		t.Errorf("losses = %d, want %d", losses, contenders-1)
	}

	final, err := rides.GetRide(context.Background(), rd.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if final.Status != ride.StatusLocked {
		t.Errorf("final status = %q, want locked", final.Status)
	}
	if final.Claimant.IsNil() {
		t.Error("claimant not recorded")
	}
	if emitter.claimed != 1 {
		t.Errorf("claimed hook fired %d times, want 1", emitter.claimed)
	}
	if emitter.contended != contenders-1 {
		t.Errorf("contended hook fired %d times, want %d", emitter.contended, contenders-1)
	}
}

func TestClaim_IdempotentReplay(t *testing.T) {
	t.Parallel()

	rd := broadcastRide()
	rides := newFakeRideStore(rd)
	drivers := newFakeDriverStore()
	emitter := &recordingEmitter{}
	arb := claim.NewArbitrator(rides, drivers, slog.New(slog.DiscardHandler), claim.WithEmitter(emitter))
	d := eligibleDriver("alex")

	first, err := arb.Claim(context.Background(), rd.ClaimToken, d)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Outcome != claim.OutcomeWon || first.Replay {
		t.Fatalf("first claim = %+v, want fresh win", first)
	}

	second, err := arb.Claim(context.Background(), rd.ClaimToken, d)
	if err != nil {
		t.Fatalf("replay claim: %v", err)
	}
	if second.Outcome != claim.OutcomeWon {
		t.Errorf("replay outcome = %q, want won", second.Outcome)
	}
	if !second.Replay {
		t.Error("replay not flagged")
	}

	if got := drivers.increments[d.ID]; got != 1 {
		t.Errorf("stat incremented %d times, want 1 (replays must not double-count)", got)
	}
	if emitter.claimed != 1 {
		t.Errorf("claimed hook fired %d times, want 1", emitter.claimed)
	}
	if emitter.contended != 0 {
		t.Errorf("contended hook fired %d times, want 0", emitter.contended)
	}
}

func TestClaim_LoserToldAlreadyClaimed(t *testing.T) {
	t.Parallel()

	rd := broadcastRide()
	rides := newFakeRideStore(rd)
	arb := claim.NewArbitrator(rides, newFakeDriverStore(), slog.New(slog.DiscardHandler))

	winner := eligibleDriver("winner")
	if _, err := arb.Claim(context.Background(), rd.ClaimToken, winner); err != nil {
		t.Fatalf("winning claim: %v", err)
	}

	res, err := arb.Claim(context.Background(), rd.ClaimToken, eligibleDriver("late"))
	if err != nil {
		t.Fatalf("losing claim: %v", err)
	}
	if res.Outcome != claim.OutcomeAlreadyClaimed {
		t.Errorf("outcome = %q, want already_claimed", res.Outcome)
	}
	if res.Winner != nil {
		t.Error("loser must not learn the winner's identity")
	}
}

func TestClaim_UnknownToken(t *testing.T) {
	t.Parallel()

	arb := claim.NewArbitrator(newFakeRideStore(), newFakeDriverStore(), slog.New(slog.DiscardHandler))

	res, err := arb.Claim(context.Background(), ride.NewClaimToken(), eligibleDriver("alex"))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Outcome != claim.OutcomeNotFound {
		t.Errorf("outcome = %q, want not_found", res.Outcome)
	}
}

func TestClaim_StaleTokenRejected(t *testing.T) {
	t.Parallel()

	rd := broadcastRide()
	stale := rd.ClaimToken
	rides := newFakeRideStore(rd)

	// A rebroadcast rotated the token; the old one still resolves in the
	// index but no longer matches the ride.
	rides.rides[rd.ID].ClaimToken = ride.NewClaimToken()

	arb := claim.NewArbitrator(rides, newFakeDriverStore(), slog.New(slog.DiscardHandler))

	res, err := arb.Claim(context.Background(), stale, eligibleDriver("alex"))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Outcome != claim.OutcomeInvalidToken {
		t.Errorf("outcome = %q, want invalid_token", res.Outcome)
	}
}

func TestClaim_IneligibleDriver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*driver.Driver)
		want   error
	}{
		{"blocked", func(d *driver.Driver) { d.IsBlocked = true }, driver.ErrBlocked},
		{"inactive", func(d *driver.Driver) { d.IsActive = false }, driver.ErrInactive},
		{"unapproved", func(d *driver.Driver) { d.RegistrationApproved = false }, driver.ErrNotApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rd := broadcastRide()
			rides := newFakeRideStore(rd)
			arb := claim.NewArbitrator(rides, newFakeDriverStore(), slog.New(slog.DiscardHandler))

			d := eligibleDriver("alex")
			tt.mutate(d)

			res, err := arb.Claim(context.Background(), rd.ClaimToken, d)
			if err != nil {
				t.Fatalf("claim: %v", err)
			}
			if res.Outcome != claim.OutcomeIneligible {
				t.Fatalf("outcome = %q, want ineligible", res.Outcome)
			}
			if !errors.Is(res.Reason, tt.want) {
				t.Errorf("reason = %v, want %v", res.Reason, tt.want)
			}

			// An ineligible attempt must not consume the ride.
			current, _ := rides.GetRide(context.Background(), rd.ID)
			if current.Status != ride.StatusSent {
				t.Errorf("ride status = %q after ineligible attempt, want sent", current.Status)
			}
		})
	}
}
