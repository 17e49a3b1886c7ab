// Package store defines the aggregate persistence interface.
//
// Each subsystem (ride, driver, undelivered) defines its own store
// interface. The composite [Store] composes them all. A single backend
// need only implement Store to satisfy every subsystem's persistence
// contract — including the conditional Transition that claim
// arbitration depends on.
//
// The composite interface:
//
//	type Store interface {
//	    ride.Store
//	    driver.Store
//	    undelivered.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory — in-memory store for development and testing
//   - store/mongo — MongoDB backend using grove and FindOneAndUpdate
//   - store/bun — SQL backend using the Bun ORM (PostgreSQL dialect)
//   - store/postgres — PostgreSQL backend using pgx/v5 with raw SQL
//   - store/sqlite — SQLite backend using grove, for single-node use
//   - store/redis — Redis backend with Lua-scripted transitions
//
// # Usage
//
//	import (
//	    "github.com/xraph/grove"
//	    "github.com/xraph/hail/store/mongo"
//	)
//
//	db, err := grove.Open(ctx, "mongo", dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s := mongo.New(db)
//
//	c, err := hail.New(hail.WithStore(s))
//
// # Migrations
//
// Call Migrate once at startup to create or update schema and indexes:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
