// Package hail is a ride dispatch and claim-arbitration engine.
//
// Hail broadcasts newly created rides to a pool of independent drivers
// over one of two outbound messaging channels (a primary automated
// gateway and a secondary provider-direct API), tracks channel health,
// and fails over automatically. Many drivers may answer a broadcast
// concurrently through at-least-once webhook delivery; Hail guarantees
// that exactly one of them wins the ride.
//
// # Quick Start
//
//	c, err := hail.New(
//	    hail.WithStore(memStore),
//	    hail.WithLogger(logger),
//	)
//
// # Architecture
//
// Hail follows a composable store pattern: the ride, driver, and
// undelivered subsystems each define their own store interface and a
// single backend (Mongo, Postgres, Redis, or Memory) implements all of
// them. Claim arbitration never takes an application-level lock — its
// correctness rests entirely on the store's atomic conditional
// transition, so under N concurrent claimants exactly one observes
// success and the rest observe contention.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package hail
