package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/hail"
	"github.com/xraph/hail/id"
	"github.com/xraph/hail/undelivered"
)

// CreateEntry persists a new park entry and indexes it as the ride's open
// entry.
func (s *Store) CreateEntry(ctx context.Context, e *undelivered.Entry) error {
	eID := e.ID.String()
	key := undeliveredKey(eID)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, entryToMap(e))
	pipe.SAdd(ctx, undeliveredIDsKey, eID)
	if !e.Resolved {
		pipe.HSet(ctx, openEntriesKey, e.RideID.String(), eID)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/redis: create undelivered entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *Store) GetEntry(ctx context.Context, entryID id.UndeliveredID) (*undelivered.Entry, error) {
	return s.getEntryByKey(ctx, undeliveredKey(entryID.String()))
}

// FindEntryByRide returns the open entry for a ride, if any.
func (s *Store) FindEntryByRide(ctx context.Context, rideID id.RideID) (*undelivered.Entry, error) {
	eID, err := s.client.HGet(ctx, openEntriesKey, rideID.String()).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, hail.ErrUndeliveredNotFound
		}
		return nil, fmt.Errorf("hail/redis: find entry by ride: %w", err)
	}
	return s.getEntryByKey(ctx, undeliveredKey(eID))
}

// ResolveEntry marks an entry handled and drops it from the open index.
func (s *Store) ResolveEntry(ctx context.Context, entryID id.UndeliveredID, resolution string) error {
	key := undeliveredKey(entryID.String())

	rideID, err := s.client.HGet(ctx, key, "ride_id").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return hail.ErrUndeliveredNotFound
		}
		return fmt.Errorf("hail/redis: resolve entry get ride: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"resolved", "true",
		"resolved_at", now,
		"resolution", resolution,
		"updated_at", now,
	)
	pipe.HDel(ctx, openEntriesKey, rideID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("hail/redis: resolve undelivered entry: %w", err)
	}
	return nil
}

// ListEntries returns entries, newest first.
func (s *Store) ListEntries(ctx context.Context, opts undelivered.ListOpts) ([]*undelivered.Entry, error) {
	ids, err := s.client.SMembers(ctx, undeliveredIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hail/redis: list undelivered smembers: %w", err)
	}

	entries := make([]*undelivered.Entry, 0, len(ids))
	for _, eID := range ids {
		e, getErr := s.getEntryByKey(ctx, undeliveredKey(eID))
		if getErr != nil {
			continue // skip missing
		}
		if !opts.IncludeResolved && e.Resolved {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	// Apply offset/limit.
	if opts.Offset > 0 && opts.Offset < len(entries) {
		entries = entries[opts.Offset:]
	} else if opts.Offset >= len(entries) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// CountEntries counts open entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, openEntriesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("hail/redis: count undelivered entries: %w", err)
	}
	return int(n), nil
}

// PurgeEntries removes resolved entries with ResolvedAt before the
// given time. Full scan, same as the listings.
func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, undeliveredIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("hail/redis: purge undelivered smembers: %w", err)
	}

	var purged int64
	for _, eID := range ids {
		e, getErr := s.getEntryByKey(ctx, undeliveredKey(eID))
		if getErr != nil {
			continue // skip missing
		}
		if !e.Resolved || e.ResolvedAt == nil || !e.ResolvedAt.Before(before) {
			continue
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, undeliveredKey(eID))
		pipe.SRem(ctx, undeliveredIDsKey, eID)
		if _, execErr := pipe.Exec(ctx); execErr != nil {
			return purged, fmt.Errorf("hail/redis: purge undelivered entry: %w", execErr)
		}
		purged++
	}
	return purged, nil
}

// ── helpers ──

func (s *Store) getEntryByKey(ctx context.Context, key string) (*undelivered.Entry, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("hail/redis: get undelivered entry: %w", err)
	}
	if len(vals) == 0 {
		return nil, hail.ErrUndeliveredNotFound
	}
	return mapToEntry(vals)
}

func entryToMap(e *undelivered.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"id":            e.ID.String(),
		"ride_id":       e.RideID.String(),
		"ride_number":   strconv.FormatInt(e.RideNumber, 10),
		"reason":        e.Reason,
		"channel_tried": e.ChannelTried,
		"attempts":      strconv.Itoa(e.Attempts),
		"resolved":      strconv.FormatBool(e.Resolved),
		"resolution":    e.Resolution,
		"created_at":    e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if e.ResolvedAt != nil {
		m["resolved_at"] = e.ResolvedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToEntry(m map[string]string) (*undelivered.Entry, error) {
	eID, err := id.ParseUndeliveredID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("hail/redis: parse undelivered id: %w", err)
	}
	rID, err := id.ParseRideID(m["ride_id"])
	if err != nil {
		return nil, fmt.Errorf("hail/redis: parse ride id: %w", err)
	}

	number, _ := strconv.ParseInt(m["ride_number"], 10, 64)       //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])                    //nolint:errcheck // best-effort parse from trusted Redis data
	resolved, _ := strconv.ParseBool(m["resolved"])               //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	e := &undelivered.Entry{
		Entity: hail.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           eID,
		RideID:       rID,
		RideNumber:   number,
		Reason:       m["reason"],
		ChannelTried: m["channel_tried"],
		Attempts:     attempts,
		Resolved:     resolved,
		Resolution:   m["resolution"],
	}
	if v := m["resolved_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		e.ResolvedAt = &t
	}
	return e, nil
}
