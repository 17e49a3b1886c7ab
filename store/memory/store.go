package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/hail"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
	"github.com/xraph/hail/undelivered"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ ride.Store        = (*Store)(nil)
	_ driver.Store      = (*Store)(nil)
	_ undelivered.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
//
// Transition holds the store mutex for the whole read-check-write, which
// gives it the same serializable visibility the SQL and Mongo backends
// get from conditional single-document updates.
type Store struct {
	mu sync.RWMutex

	rides   map[string]*ride.Ride
	tokens  map[string]string // claim token → ride ID
	drivers map[string]*driver.Driver
	phones  map[string]string // phone → driver ID
	entries map[string]*undelivered.Entry
	open    map[string]string // ride ID → open entry ID

	rideSeq int64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		rides:   make(map[string]*ride.Ride),
		tokens:  make(map[string]string),
		drivers: make(map[string]*driver.Driver),
		phones:  make(map[string]string),
		entries: make(map[string]*undelivered.Entry),
		open:    make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// copyRide returns a deep copy so callers can mutate without racing
// with the store.
func copyRide(r *ride.Ride) *ride.Ride {
	cp := *r
	cp.History = slices.Clone(r.History)
	return &cp
}

// ──────────────────────────────────────────────────
// Ride Store
// ──────────────────────────────────────────────────

// CreateRide persists a new ride in created status.
func (m *Store) CreateRide(_ context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	if _, exists := m.rides[key]; exists {
		return hail.ErrRideAlreadyExists
	}
	cp := copyRide(r)
	m.rides[key] = cp
	if cp.ClaimToken != "" {
		m.tokens[cp.ClaimToken] = key
	}
	return nil
}

// GetRide retrieves a ride by ID.
func (m *Store) GetRide(_ context.Context, rideID id.RideID) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rides[rideID.String()]
	if !ok {
		return nil, hail.ErrRideNotFound
	}
	return copyRide(r), nil
}

// FindRideByToken retrieves the ride bound to a claim token.
func (m *Store) FindRideByToken(_ context.Context, token string) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.tokens[token]
	if !ok {
		return nil, hail.ErrRideNotFound
	}
	r, ok := m.rides[key]
	if !ok {
		return nil, hail.ErrRideNotFound
	}
	return copyRide(r), nil
}

// FindActiveRideByDriver returns the ride the driver currently holds.
func (m *Store) FindActiveRideByDriver(_ context.Context, driverID id.DriverID) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := ride.ActiveStatuses()
	for _, r := range m.rides {
		if r.Claimant.String() == driverID.String() && slices.Contains(active, r.Status) {
			return copyRide(r), nil
		}
	}
	return nil, hail.ErrRideNotFound
}

// UpdateRide persists non-status changes to an existing ride.
func (m *Store) UpdateRide(_ context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.ID.String()
	prev, ok := m.rides[key]
	if !ok {
		return hail.ErrRideNotFound
	}

	if prev.ClaimToken != "" && prev.ClaimToken != r.ClaimToken {
		delete(m.tokens, prev.ClaimToken)
	}
	cp := copyRide(r)
	cp.UpdatedAt = time.Now().UTC()
	m.rides[key] = cp
	if cp.ClaimToken != "" {
		m.tokens[cp.ClaimToken] = key
	}
	return nil
}

// Transition atomically applies patch iff the ride's current status is
// one of expected.
func (m *Store) Transition(_ context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rideID.String()
	r, ok := m.rides[key]
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
	if patch.ClearClaimant {
		r.Claimant = id.Nil
	}
	if patch.LockedAt != nil {
		t := *patch.LockedAt
		r.LockedAt = &t
	}
	if patch.ClearLockedAt {
		r.LockedAt = nil
	}
	if patch.ClaimToken != nil {
		if r.ClaimToken != "" {
			delete(m.tokens, r.ClaimToken)
		}
		r.ClaimToken = *patch.ClaimToken
		if r.ClaimToken != "" {
			m.tokens[r.ClaimToken] = key
		}
	}
	if patch.DispatchMethod != nil {
		r.DispatchMethod = *patch.DispatchMethod
	}
	if patch.IncrementBroadcast {
		r.BroadcastCount++
	}
	if patch.History != nil {
		r.History = append(r.History, *patch.History)
	}
	r.UpdatedAt = time.Now().UTC()

	return copyRide(r), nil
}

// AppendHistory appends one audit entry without a status change.
func (m *Store) AppendHistory(_ context.Context, rideID id.RideID, entry ride.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[rideID.String()]
	if !ok {
		return hail.ErrRideNotFound
	}
	r.History = append(r.History, entry)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// ListRidesByStatus returns rides in the given status, oldest first.
func (m *Store) ListRidesByStatus(_ context.Context, status ride.Status, opts ride.ListOpts) ([]*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*ride.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		if r.Status != status {
			continue
		}
		result = append(result, copyRide(r))
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].Number < result[k].Number
	})

	return paginate(result, opts.Limit, opts.Offset), nil
}

// CountRides counts rides matching opts.
func (m *Store) CountRides(_ context.Context, opts ride.CountOpts) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if opts.Status == "" {
		return len(m.rides), nil
	}
	count := 0
	for _, r := range m.rides {
		if r.Status == opts.Status {
			count++
		}
	}
	return count, nil
}

// NextRideNumber returns the next sequential display number.
func (m *Store) NextRideNumber(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rideSeq++
	return m.rideSeq, nil
}

// ──────────────────────────────────────────────────
// Driver Store
// ──────────────────────────────────────────────────

// GetDriver retrieves a driver by ID.
func (m *Store) GetDriver(_ context.Context, driverID id.DriverID) (*driver.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.drivers[driverID.String()]
	if !ok {
		return nil, hail.ErrDriverNotFound
	}
	cp := *d
	return &cp, nil
}

// FindDriverByPhone retrieves a driver by webhook sender address.
func (m *Store) FindDriverByPhone(_ context.Context, phone string) (*driver.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.phones[phone]
	if !ok {
		return nil, hail.ErrDriverNotFound
	}
	d, ok := m.drivers[key]
	if !ok {
		return nil, hail.ErrDriverNotFound
	}
	cp := *d
	return &cp, nil
}

// UpsertDriver creates or replaces a driver record.
func (m *Store) UpsertDriver(_ context.Context, d *driver.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	if prev, ok := m.drivers[key]; ok && prev.Phone != d.Phone {
		delete(m.phones, prev.Phone)
	}
	cp := *d
	cp.UpdatedAt = time.Now().UTC()
	m.drivers[key] = &cp
	if cp.Phone != "" {
		m.phones[cp.Phone] = key
	}
	return nil
}

// IncrementDriverStat bumps one of the driver counters.
func (m *Store) IncrementDriverStat(_ context.Context, driverID id.DriverID, stat driver.StatDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drivers[driverID.String()]
	if !ok {
		return hail.ErrDriverNotFound
	}
	switch stat {
	case driver.StatClaimed:
		d.RidesClaimed++
	case driver.StatCompleted:
		d.RidesCompleted++
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// ListDrivers returns all drivers, most recently updated first.
func (m *Store) ListDrivers(_ context.Context) ([]*driver.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*driver.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		cp := *d
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].UpdatedAt.After(result[k].UpdatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Undelivered Store
// ──────────────────────────────────────────────────

// CreateEntry persists a new park entry.
func (m *Store) CreateEntry(_ context.Context, e *undelivered.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.entries[e.ID.String()] = &cp
	if !e.Resolved {
		m.open[e.RideID.String()] = e.ID.String()
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (m *Store) GetEntry(_ context.Context, entryID id.UndeliveredID) (*undelivered.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryID.String()]
	if !ok {
		return nil, hail.ErrUndeliveredNotFound
	}
	cp := *e
	return &cp, nil
}

// FindEntryByRide returns the open entry for a ride, if any.
func (m *Store) FindEntryByRide(_ context.Context, rideID id.RideID) (*undelivered.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.open[rideID.String()]
	if !ok {
		return nil, hail.ErrUndeliveredNotFound
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, hail.ErrUndeliveredNotFound
	}
	cp := *e
	return &cp, nil
}

// ResolveEntry marks an entry handled with the given resolution.
func (m *Store) ResolveEntry(_ context.Context, entryID id.UndeliveredID, resolution string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryID.String()]
	if !ok {
		return hail.ErrUndeliveredNotFound
	}
	now := time.Now().UTC()
	e.Resolved = true
	e.ResolvedAt = &now
	e.Resolution = resolution
	e.UpdatedAt = now
	delete(m.open, e.RideID.String())
	return nil
}

// ListEntries returns entries, newest first.
func (m *Store) ListEntries(_ context.Context, opts undelivered.ListOpts) ([]*undelivered.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*undelivered.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Resolved && !opts.IncludeResolved {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})
	return paginate(result, opts.Limit, opts.Offset), nil
}

// CountEntries counts open entries.
func (m *Store) CountEntries(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open), nil
}

// PurgeEntries removes resolved entries with ResolvedAt before the
// given time.
func (m *Store) PurgeEntries(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for key, e := range m.entries {
		if e.Resolved && e.ResolvedAt != nil && e.ResolvedAt.Before(before) {
			delete(m.entries, key)
			purged++
		}
	}
	return purged, nil
}

// paginate applies offset/limit to a sorted slice.
func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
