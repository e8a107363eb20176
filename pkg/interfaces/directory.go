package interfaces

import (
	"roomhub/pkg/types"
)

// RoomDirectory is the query/mutation surface the HTTP layer calls
// ARCHITECTURAL DISCOVERY: Expressed in pkg/types only so handlers never see
// room internals or session tables
type RoomDirectory interface {
	// AllEntities lists entities across every room
	AllEntities() []types.Entity

	// FindEntity returns the first entity with id found in any room
	FindEntity(id int64) (types.Entity, error)

	// InsertEverywhere inserts or replaces the entity in every existing room
	// FUNCTIONAL DISCOVERY: Fans out to all rooms rather than one target room;
	// returns how many rooms received it
	InsertEverywhere(entity types.Entity) int

	// ReplaceEntity replaces the entity stored under id in the first room holding it
	ReplaceEntity(id int64, entity types.Entity) error

	// RemoveEntity removes id from the first room holding it
	RemoveEntity(id int64) error

	// Paths lists the active room paths
	Paths() []string

	// Summary returns session count and metadata for one room
	Summary(path string) (types.RoomSummary, error)

	// SessionTotals returns room and session counts for health reporting
	SessionTotals() map[string]int
}
