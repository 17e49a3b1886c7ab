package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the hail sqlite store.
var Migrations = migrate.NewGroup("hail")

func init() {
	Migrations.MustRegister(
		// 001: Create rides table and indexes.
		&migrate.Migration{
			Name:    "create_rides_table",
			Version: "20240101120000",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS hail_rides (
						id              TEXT PRIMARY KEY,
						number          INTEGER NOT NULL UNIQUE,
						status          TEXT NOT NULL,
						claim_token     TEXT,
						claimant        TEXT,
						dispatch_method TEXT,
						broadcast_count INTEGER NOT NULL DEFAULT 0,
						locked_at       TEXT,
						pickup          TEXT NOT NULL,
						dropoff         TEXT NOT NULL,
						rider_name      TEXT,
						rider_contact   TEXT,
						history         TEXT NOT NULL DEFAULT '[]',
						created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
						updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE UNIQUE INDEX IF NOT EXISTS idx_hail_rides_claim_token
						ON hail_rides (claim_token)
						WHERE claim_token IS NOT NULL AND claim_token != ''`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_hail_rides_status
						ON hail_rides (status, number)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_hail_rides_claimant
						ON hail_rides (claimant, status)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hail_rides`)
				return err
			},
		},

		// 002: Create drivers table.
		&migrate.Migration{
			Name:    "create_drivers_table",
			Version: "20240101120001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS hail_drivers (
						id                    TEXT PRIMARY KEY,
						name                  TEXT NOT NULL,
						phone                 TEXT NOT NULL UNIQUE,
						is_active             INTEGER NOT NULL DEFAULT 1,
						is_blocked            INTEGER NOT NULL DEFAULT 0,
						registration_approved INTEGER NOT NULL DEFAULT 0,
						rides_claimed         INTEGER NOT NULL DEFAULT 0,
						rides_completed       INTEGER NOT NULL DEFAULT 0,
						created_at            TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
						updated_at            TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_hail_drivers_updated
						ON hail_drivers (updated_at DESC)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hail_drivers`)
				return err
			},
		},

		// 003: Create undelivered entries table.
		&migrate.Migration{
			Name:    "create_undelivered_table",
			Version: "20240101120002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS hail_undelivered (
						id            TEXT PRIMARY KEY,
						ride_id       TEXT NOT NULL,
						ride_number   INTEGER NOT NULL,
						reason        TEXT NOT NULL,
						channel_tried TEXT,
						attempts      INTEGER NOT NULL DEFAULT 0,
						resolved      INTEGER NOT NULL DEFAULT 0,
						resolved_at   TEXT,
						resolution    TEXT,
						created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
						updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
					)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_hail_undelivered_ride
						ON hail_undelivered (ride_id, resolved)`)
				if err != nil {
					return err
				}

				_, err = exec.Exec(ctx, `
					CREATE INDEX IF NOT EXISTS idx_hail_undelivered_listing
						ON hail_undelivered (resolved, created_at DESC)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hail_undelivered`)
				return err
			},
		},

		// 004: Create counters table for sequential ride numbers.
		&migrate.Migration{
			Name:    "create_counters_table",
			Version: "20240101120003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
					CREATE TABLE IF NOT EXISTS hail_counters (
						name  TEXT PRIMARY KEY,
						value INTEGER NOT NULL DEFAULT 0
					)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS hail_counters`)
				return err
			},
		},
	)
}
