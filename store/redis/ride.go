package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/ride"
)

// transitionScript applies a status-conditional patch to a ride hash. The
// whole read-check-write runs inside the server, so concurrent claimants
// serialize on the key. KEYS[1] is the ride hash, KEYS[2] the token index.
//
// ARGV layout: expected-status count and statuses, set-pair count and
// field/value pairs, delete count and fields, broadcast-increment flag,
// history entry JSON (or empty).
var transitionScript = goredis.NewScript(`
local key = KEYS[1]
local status = redis.call('HGET', key, 'status')
if not status then
  return redis.error_reply('not_found')
end

local i = 2
local n = tonumber(ARGV[1])
local match = false
for j = 1, n do
  if status == ARGV[i] then match = true end
  i = i + 1
end
if not match then
  return redis.error_reply('conflict')
end

local m = tonumber(ARGV[i]); i = i + 1
for j = 1, m do
  local field = ARGV[i]
  local value = ARGV[i+1]
  if field == 'claim_token' then
    local old = redis.call('HGET', key, 'claim_token')
    if old and old ~= '' then
      redis.call('HDEL', KEYS[2], old)
    end
    redis.call('HSET', KEYS[2], value, redis.call('HGET', key, 'id'))
  end
  redis.call('HSET', key, field, value)
  i = i + 2
end

local k = tonumber(ARGV[i]); i = i + 1
for j = 1, k do
  redis.call('HDEL', key, ARGV[i])
  i = i + 1
end

if ARGV[i] == '1' then
  redis.call('HINCRBY', key, 'broadcast_count', 1)
end
i = i + 1

if ARGV[i] ~= '' then
  local hist = redis.call('HGET', key, 'history')
  local arr = {}
  if hist and hist ~= '' then arr = cjson.decode(hist) end
  table.insert(arr, cjson.decode(ARGV[i]))
  redis.call('HSET', key, 'history', cjson.encode(arr))
end

return redis.call('HGETALL', key)
`)

// appendHistoryScript appends one audit entry to a ride's history JSON.
var appendHistoryScript = goredis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return redis.error_reply('not_found')
end
local hist = redis.call('HGET', key, 'history')
local arr = {}
if hist and hist ~= '' then arr = cjson.decode(hist) end
table.insert(arr, cjson.decode(ARGV[1]))
redis.call('HSET', key, 'history', cjson.encode(arr))
redis.call('HSET', key, 'updated_at', ARGV[2])
return 1
`)

// CreateRide stores the ride as a Hash and registers it for enumeration.
func (s *Store) CreateRide(ctx context.Context, r *ride.Ride) error {
	rID := r.ID.String()
	key := rideKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("hail/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return hail.ErrRideAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, rideToMap(r))
	pipe.SAdd(ctx, rideIDsKey, rID)
	if r.ClaimToken != "" {
		pipe.HSet(ctx, tokensKey, r.ClaimToken, rID)
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/redis: create ride: %w", err)
	}
	return nil
}

// GetRide retrieves a ride by ID.
func (s *Store) GetRide(ctx context.Context, rideID id.RideID) (*ride.Ride, error) {
	return s.getRideByKey(ctx, rideKey(rideID.String()))
}

// FindRideByToken retrieves the ride bound to a claim token via the token
// index.
func (s *Store) FindRideByToken(ctx context.Context, token string) (*ride.Ride, error) {
	rID, err := s.client.HGet(ctx, tokensKey, token).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, hail.ErrRideNotFound
		}
		return nil, fmt.Errorf("hail/redis: find ride by token: %w", err)
	}
	return s.getRideByKey(ctx, rideKey(rID))
}

// FindActiveRideByDriver returns the ride the driver currently holds.
func (s *Store) FindActiveRideByDriver(ctx context.Context, driverID id.DriverID) (*ride.Ride, error) {
	ids, err := s.client.SMembers(ctx, rideIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hail/redis: find active smembers: %w", err)
	}

	want := driverID.String()
	for _, rID := range ids {
		r, getErr := s.getRideByKey(ctx, rideKey(rID))
		if getErr != nil {
			continue // skip missing
		}
		if r.Claimant.String() != want {
			continue
		}
		for _, st := range ride.ActiveStatuses() {
			if r.Status == st {
				return r, nil
			}
		}
	}
	return nil, hail.ErrRideNotFound
}

// UpdateRide persists non-status changes to an existing ride, maintaining
// the token index when the claim token rotates.
func (s *Store) UpdateRide(ctx context.Context, r *ride.Ride) error {
	rID := r.ID.String()
	key := rideKey(rID)

	oldToken, err := s.client.HGet(ctx, key, "claim_token").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return hail.ErrRideNotFound
		}
		return fmt.Errorf("hail/redis: update ride get token: %w", err)
	}

	fields := rideToMap(r)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if oldToken != r.ClaimToken {
		if oldToken != "" {
			pipe.HDel(ctx, tokensKey, oldToken)
		}
		if r.ClaimToken != "" {
			pipe.HSet(ctx, tokensKey, r.ClaimToken, rID)
		}
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/redis: update ride: %w", err)
	}
	return nil
}

// Transition atomically applies patch iff the ride's current status is one
// of expected. The script runs server-side, so no two writers interleave.
func (s *Store) Transition(ctx context.Context, rideID id.RideID, expected []ride.Status, patch ride.Patch) (*ride.Ride, error) {
	argv := make([]interface{}, 0, 16)
	argv = append(argv, len(expected))
	for _, st := range expected {
		argv = append(argv, string(st))
	}

	sets := make([]interface{}, 0, 12)
	sets = append(sets, "status", string(patch.Status))
	sets = append(sets, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	if patch.Claimant != nil {
		sets = append(sets, "claimant", patch.Claimant.String())
	}
	if patch.LockedAt != nil {
		sets = append(sets, "locked_at", patch.LockedAt.Format(time.RFC3339Nano))
	}
	if patch.ClaimToken != nil {
		sets = append(sets, "claim_token", *patch.ClaimToken)
	}
	if patch.DispatchMethod != nil {
		sets = append(sets, "dispatch_method", *patch.DispatchMethod)
	}
	argv = append(argv, len(sets)/2)
	argv = append(argv, sets...)

	dels := make([]interface{}, 0, 2)
	if patch.ClearClaimant {
		dels = append(dels, "claimant")
	}
	if patch.ClearLockedAt {
		dels = append(dels, "locked_at")
	}
	argv = append(argv, len(dels))
	argv = append(argv, dels...)

	if patch.IncrementBroadcast {
		argv = append(argv, "1")
	} else {
		argv = append(argv, "0")
	}

	if patch.History != nil {
		argv = append(argv, marshalHistoryEntry(*patch.History))
	} else {
		argv = append(argv, "")
	}

	keys := []string{rideKey(rideID.String()), tokensKey}
	res, err := transitionScript.Run(ctx, s.client, keys, argv...).Result()
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not_found"):
			return nil, hail.ErrRideNotFound
		case strings.Contains(err.Error(), "conflict"):
			return nil, hail.ErrStateConflict
		}
		return nil, fmt.Errorf("hail/redis: transition ride: %w", err)
	}

	fields, err := replyToMap(res)
	if err != nil {
		return nil, fmt.Errorf("hail/redis: transition reply: %w", err)
	}
	return mapToRide(fields)
}

// AppendHistory appends one audit entry without a status change.
func (s *Store) AppendHistory(ctx context.Context, rideID id.RideID, entry ride.HistoryEntry) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	keys := []string{rideKey(rideID.String())}
	err := appendHistoryScript.Run(ctx, s.client, keys, marshalHistoryEntry(entry), now).Err()
	if err != nil {
		if strings.Contains(err.Error(), "not_found") {
			return hail.ErrRideNotFound
		}
		return fmt.Errorf("hail/redis: append history: %w", err)
	}
	return nil
}

// ListRidesByStatus returns rides in the given status, oldest first.
func (s *Store) ListRidesByStatus(ctx context.Context, status ride.Status, opts ride.ListOpts) ([]*ride.Ride, error) {
	ids, err := s.client.SMembers(ctx, rideIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hail/redis: list rides smembers: %w", err)
	}

	rides := make([]*ride.Ride, 0, len(ids))
	for _, rID := range ids {
		r, getErr := s.getRideByKey(ctx, rideKey(rID))
		if getErr != nil {
			continue // skip missing
		}
		if r.Status != status {
			continue
		}
		rides = append(rides, r)
	}

	sort.Slice(rides, func(i, j int) bool { return rides[i].Number < rides[j].Number })

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(rides) {
		rides = rides[opts.Offset:]
	} else if opts.Offset >= len(rides) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(rides) {
		rides = rides[:opts.Limit]
	}
	return rides, nil
}

// CountRides counts rides matching opts.
func (s *Store) CountRides(ctx context.Context, opts ride.CountOpts) (int, error) {
	ids, err := s.client.SMembers(ctx, rideIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("hail/redis: count rides smembers: %w", err)
	}

	count := 0
	for _, rID := range ids {
		r, getErr := s.getRideByKey(ctx, rideKey(rID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		count++
	}
	return count, nil
}

// NextRideNumber returns the next sequential display number.
func (s *Store) NextRideNumber(ctx context.Context) (int64, error) {
	n, err := s.client.Incr(ctx, rideNumberKey).Result()
	if err != nil {
		return 0, fmt.Errorf("hail/redis: next ride number: %w", err)
	}
	return n, nil
}

// ── helpers ──

func (s *Store) getRideByKey(ctx context.Context, key string) (*ride.Ride, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hail/redis: get ride: %w", err)
	}
	if len(vals) == 0 {
		return nil, hail.ErrRideNotFound
	}
	return mapToRide(vals)
}

type historyEntryJSON struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Detail string `json:"detail,omitempty"`
	At     string `json:"at"`
}

func marshalHistoryEntry(h ride.HistoryEntry) string {
	b, _ := json.Marshal(historyEntryJSON{ //nolint:errcheck // marshal should not fail for basic types
		Status: string(h.Status),
		Actor:  h.Actor,
		Detail: h.Detail,
		At:     h.At.UTC().Format(time.RFC3339Nano),
	})
	return string(b)
}

func marshalHistory(entries []ride.HistoryEntry) string {
	out := make([]historyEntryJSON, len(entries))
	for i, h := range entries {
		out[i] = historyEntryJSON{
			Status: string(h.Status),
			Actor:  h.Actor,
			Detail: h.Detail,
			At:     h.At.UTC().Format(time.RFC3339Nano),
		}
	}
	b, _ := json.Marshal(out) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

func unmarshalHistory(s string) []ride.HistoryEntry {
	if s == "" || s == "null" || s == "{}" {
		return nil
	}
	var raw []historyEntryJSON
	_ = json.Unmarshal([]byte(s), &raw) //nolint:errcheck // best-effort parse from trusted Redis data
	entries := make([]ride.HistoryEntry, 0, len(raw))
	for _, h := range raw {
		at, _ := time.Parse(time.RFC3339Nano, h.At) //nolint:errcheck // best-effort parse from trusted Redis data
		entries = append(entries, ride.HistoryEntry{
			Status: ride.Status(h.Status),
			Actor:  h.Actor,
			Detail: h.Detail,
			At:     at,
		})
	}
	return entries
}

func rideToMap(r *ride.Ride) map[string]interface{} {
	m := map[string]interface{}{
		"id":              r.ID.String(),
		"number":          strconv.FormatInt(r.Number, 10),
		"status":          string(r.Status),
		"claim_token":     r.ClaimToken,
		"claimant":        r.Claimant.String(),
		"dispatch_method": r.DispatchMethod,
		"broadcast_count": strconv.Itoa(r.BroadcastCount),
		"pickup":          r.Pickup,
		"dropoff":         r.Dropoff,
		"rider_name":      r.RiderName,
		"rider_contact":   r.RiderContact,
		"history":         marshalHistory(r.History),
		"created_at":      r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      r.UpdatedAt.Format(time.RFC3339Nano),
	}
	if r.LockedAt != nil {
		m["locked_at"] = r.LockedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToRide(m map[string]string) (*ride.Ride, error) {
	rID, err := id.ParseRideID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("hail/redis: parse ride id: %w", err)
	}

	number, _ := strconv.ParseInt(m["number"], 10, 64)            //nolint:errcheck // best-effort parse from trusted Redis data
	broadcastCount, _ := strconv.Atoi(m["broadcast_count"])       //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	r := &ride.Ride{
		Entity: hail.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:             rID,
		Number:         number,
		Status:         ride.Status(m["status"]),
		ClaimToken:     m["claim_token"],
		DispatchMethod: m["dispatch_method"],
		BroadcastCount: broadcastCount,
		Pickup:         m["pickup"],
		Dropoff:        m["dropoff"],
		RiderName:      m["rider_name"],
		RiderContact:   m["rider_contact"],
		History:        unmarshalHistory(m["history"]),
	}

	if claimant := m["claimant"]; claimant != "" {
		r.Claimant, _ = id.ParseDriverID(claimant) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["locked_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		r.LockedAt = &t
	}

	return r, nil
}

// replyToMap converts an HGETALL script reply into a field map.
func replyToMap(res interface{}) (map[string]string, error) {
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected reply type %T", res)
	}
	m := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, kOK := raw[i].(string)
		v, vOK := raw[i+1].(string)
		if !kOK || !vOK {
			return nil, fmt.Errorf("unexpected reply pair at %d", i)
		}
		m[k] = v
	}
	return m, nil
}
