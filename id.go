package hail

import "github.com/xraph/hail/id"

// ID is the primary identifier type for all Hail entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
