package redis

// Redis key naming conventions for hail data.
// All keys are prefixed with "hail:" to avoid collisions.

const keyPrefix = "hail:"

// ── Ride keys ──

// rideKey returns the key for a ride entity: hail:ride:{id}
func rideKey(id string) string { return keyPrefix + "ride:" + id }

// rideIDsKey is the Set tracking all ride IDs for enumeration.
const rideIDsKey = keyPrefix + "ride_ids"

// tokensKey maps live claim tokens to ride IDs for O(1) claim lookup.
const tokensKey = keyPrefix + "tokens"

// rideNumberKey is the counter behind sequential display numbers.
const rideNumberKey = keyPrefix + "ride_number"

// ── Driver keys ──

// driverKey returns the key for a driver entity: hail:driver:{id}
func driverKey(id string) string { return keyPrefix + "driver:" + id }

// driverIDsKey is the Set tracking all driver IDs for enumeration.
const driverIDsKey = keyPrefix + "driver_ids"

// phonesKey maps webhook sender addresses to driver IDs.
const phonesKey = keyPrefix + "phones"

// ── Undelivered keys ──

// undeliveredKey returns the key for a park entry: hail:undelivered:{id}
func undeliveredKey(id string) string { return keyPrefix + "undelivered:" + id }

// undeliveredIDsKey is the Set tracking all park entry IDs.
const undeliveredIDsKey = keyPrefix + "undelivered_ids"

// openEntriesKey maps ride IDs to their open park entry, one per ride.
const openEntriesKey = keyPrefix + "undelivered_open"
