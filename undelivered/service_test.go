package undelivered_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/undelivered"
)

type fakeStore struct {
	mu      sync.Mutex
	entries map[id.UndeliveredID]*undelivered.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[id.UndeliveredID]*undelivered.Entry)}
}

func (s *fakeStore) CreateEntry(_ context.Context, e *undelivered.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *fakeStore) GetEntry(_ context.Context, entryID id.UndeliveredID) (*undelivered.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return nil, hail.ErrUndeliveredNotFound
	}
	return e, nil
}

func (s *fakeStore) FindEntryByRide(_ context.Context, rideID id.RideID) (*undelivered.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.RideID.String() == rideID.String() && !e.Resolved {
			return e, nil
		}
	}
	return nil, hail.ErrUndeliveredNotFound
}

func (s *fakeStore) ResolveEntry(_ context.Context, entryID id.UndeliveredID, resolution string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return hail.ErrUndeliveredNotFound
	}
	now := time.Now().UTC()
	e.Resolved = true
	e.ResolvedAt = &now
	e.Resolution = resolution
	return nil
}

func (s *fakeStore) ListEntries(_ context.Context, opts undelivered.ListOpts) ([]*undelivered.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*undelivered.Entry
	for _, e := range s.entries {
		if !opts.IncludeResolved && e.Resolved {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeStore) CountEntries(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if !e.Resolved {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) PurgeEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int64
	for key, e := range s.entries {
		if e.Resolved && e.ResolvedAt != nil && e.ResolvedAt.Before(before) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged, nil
}

func parkedRide() *ride.Ride {
	return &ride.Ride{
		Entity: hail.NewEntity(),
		ID:     id.NewRideID(),
		Number: 17,
		Status: ride.StatusUndeliverable,
	}
}

func TestPark_RecordsFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := undelivered.NewService(store, slog.New(slog.DiscardHandler))
	rd := parkedRide()

	e, err := svc.Park(context.Background(), rd, "secondary", 4, errors.New("all channels exhausted"))
	if err != nil {
		t.Fatalf("park: %v", err)
	}
	if e.RideID.String() != rd.ID.String() {
		t.Error("entry not bound to ride")
	}
	if e.Reason != "all channels exhausted" {
		t.Errorf("reason = %q", e.Reason)
	}
	if e.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", e.Attempts)
	}

	n, err := svc.OpenCount(context.Background())
	if err != nil {
		t.Fatalf("open count: %v", err)
	}
	if n != 1 {
		t.Errorf("open count = %d, want 1", n)
	}
}

func TestPark_IdempotentPerRide(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := undelivered.NewService(store, slog.New(slog.DiscardHandler))
	rd := parkedRide()

	first, err := svc.Park(context.Background(), rd, "primary", 3, errors.New("down"))
	if err != nil {
		t.Fatalf("first park: %v", err)
	}
	second, err := svc.Park(context.Background(), rd, "secondary", 4, errors.New("still down"))
	if err != nil {
		t.Fatalf("second park: %v", err)
	}

	if first.ID.String() != second.ID.String() {
		t.Error("repeated park created a second open entry")
	}
	if n, _ := svc.OpenCount(context.Background()); n != 1 {
		t.Errorf("open count = %d, want 1", n)
	}
}

func TestResolve_ClosesEntry(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := undelivered.NewService(store, slog.New(slog.DiscardHandler))
	rd := parkedRide()

	e, err := svc.Park(context.Background(), rd, "primary", 3, errors.New("down"))
	if err != nil {
		t.Fatalf("park: %v", err)
	}
	if err := svc.Resolve(context.Background(), e.ID, undelivered.ResolutionRedispatched); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got, err := svc.Get(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Resolved || got.Resolution != undelivered.ResolutionRedispatched {
		t.Errorf("entry = %+v, want resolved as redispatched", got)
	}
	if got.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}

	// A resolved entry no longer blocks a fresh park for the same ride.
	if _, err := svc.Park(context.Background(), rd, "primary", 3, errors.New("down again")); err != nil {
		t.Fatalf("re-park: %v", err)
	}
	if n, _ := svc.OpenCount(context.Background()); n != 1 {
		t.Errorf("open count = %d, want 1", n)
	}
}

func TestPurge_RemovesOnlyOldResolved(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := undelivered.NewService(store, slog.New(slog.DiscardHandler))

	open, err := svc.Park(context.Background(), parkedRide(), "primary", 3, errors.New("down"))
	if err != nil {
		t.Fatalf("park: %v", err)
	}
	resolved, err := svc.Park(context.Background(), parkedRide(), "primary", 3, errors.New("down"))
	if err != nil {
		t.Fatalf("park: %v", err)
	}
	if err := svc.Resolve(context.Background(), resolved.ID, undelivered.ResolutionCancelled); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Cutoff in the past purges nothing.
	n, err := svc.Purge(context.Background(), time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 0 {
		t.Errorf("purged = %d, want 0", n)
	}

	// Cutoff in the future purges the resolved entry but not the open one.
	n, err = svc.Purge(context.Background(), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, err := svc.Get(context.Background(), resolved.ID); !errors.Is(err, hail.ErrUndeliveredNotFound) {
		t.Errorf("resolved entry still present: %v", err)
	}
	if _, err := svc.Get(context.Background(), open.ID); err != nil {
		t.Errorf("open entry should survive purge: %v", err)
	}
}

func TestResolve_UnknownEntry(t *testing.T) {
	t.Parallel()

	svc := undelivered.NewService(newFakeStore(), slog.New(slog.DiscardHandler))

	err := svc.Resolve(context.Background(), id.NewUndeliveredID(), undelivered.ResolutionCancelled)
	if !errors.Is(err, hail.ErrUndeliveredNotFound) {
		t.Errorf("err = %v, want ErrUndeliveredNotFound", err)
	}
}
