package room

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"roomhub/pkg/interfaces"
	"roomhub/pkg/types"
)

// Registry maps room paths to live rooms
// ARCHITECTURAL DISCOVERY: The registry is a lookup relation only. Session
// goroutines hold their own *Room, so a room evicted here keeps working for
// everyone that already captured it.
type Registry struct {
	rooms    *xsync.MapOf[string, *Room]
	settings Settings
}

// NewRegistry creates an empty registry that stamps settings onto new rooms
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		rooms:    xsync.NewMapOf[string, *Room](),
		settings: settings,
	}
}

// GetOrCreate returns the room for path, creating it on first join
// TECHNICAL DISCOVERY: LoadOrCompute runs the constructor under the key's bucket
// lock, so concurrent first joins on one path all observe the same instance
func (r *Registry) GetOrCreate(path string) *Room {
	room, loaded := r.rooms.LoadOrCompute(path, func() *Room {
		return New(path, r.settings)
	})
	if !loaded {
		log.Info().Str("module", "room.registry").Str("path", path).Msg("room created")
	}
	return room
}

// Get returns the room currently registered for path
func (r *Registry) Get(path string) (*Room, bool) {
	return r.rooms.Load(path)
}

// RemoveIfEmpty evicts path only while it still maps to room and room has no sessions
// FUNCTIONAL DISCOVERY: The identity and emptiness checks run atomically with the
// delete. A session that registers into room after that check is orphaned: its
// room keeps serving whoever holds it, and the next GetOrCreate for path allocates
// a fresh room. This narrow race is accepted rather than locked away.
func (r *Registry) RemoveIfEmpty(path string, room *Room) bool {
	removed := false
	r.rooms.Compute(path, func(current *Room, loaded bool) (*Room, bool) {
		if !loaded {
			return current, true
		}
		if current != room || current.SessionCount() != 0 {
			return current, false
		}
		removed = true
		return current, true
	})
	if removed {
		log.Info().Str("module", "room.registry").Str("path", path).Msg("room torn down")
	}
	return removed
}

// Rooms returns the registered rooms
func (r *Registry) Rooms() []*Room {
	rooms := make([]*Room, 0, r.rooms.Size())
	r.rooms.Range(func(_ string, room *Room) bool {
		rooms = append(rooms, room)
		return true
	})
	return rooms
}

// Paths lists the active room paths in lexical order
func (r *Registry) Paths() []string {
	paths := lo.Map(r.Rooms(), func(room *Room, _ int) string {
		return room.Path()
	})
	sort.Strings(paths)
	return paths
}

// AllEntities lists entities across every room
func (r *Registry) AllEntities() []types.Entity {
	return lo.FlatMap(r.Rooms(), func(room *Room, _ int) []types.Entity {
		return room.SnapshotEntities()
	})
}

// FindEntity returns the first entity with id found in any room
func (r *Registry) FindEntity(id int64) (types.Entity, error) {
	var (
		found  types.Entity
		exists bool
	)
	r.rooms.Range(func(_ string, room *Room) bool {
		found, exists = room.Entity(id)
		return !exists
	})
	if !exists {
		return types.Entity{}, interfaces.ErrEntityNotFound
	}
	return found, nil
}

// InsertEverywhere upserts entity into every existing room
// FUNCTIONAL DISCOVERY: Insert targets all rooms at once, not one room. This is
// kept as observed behavior; with no rooms the entity is stored nowhere.
func (r *Registry) InsertEverywhere(entity types.Entity) int {
	count := 0
	r.rooms.Range(func(_ string, room *Room) bool {
		room.UpsertEntity(entity)
		count++
		return true
	})
	return count
}

// ReplaceEntity replaces id in the first room that holds it
func (r *Registry) ReplaceEntity(id int64, entity types.Entity) error {
	replaced := false
	r.rooms.Range(func(_ string, room *Room) bool {
		replaced = room.ReplaceEntity(id, entity)
		return !replaced
	})
	if !replaced {
		return interfaces.ErrEntityNotFound
	}
	return nil
}

// RemoveEntity removes id from the first room that holds it
func (r *Registry) RemoveEntity(id int64) error {
	removed := false
	r.rooms.Range(func(_ string, room *Room) bool {
		removed = room.RemoveEntity(id)
		return !removed
	})
	if !removed {
		return interfaces.ErrEntityNotFound
	}
	return nil
}

// Summary returns session count and metadata for one room
func (r *Registry) Summary(path string) (types.RoomSummary, error) {
	room, exists := r.rooms.Load(path)
	if !exists {
		return types.RoomSummary{}, interfaces.ErrRoomNotFound
	}
	return types.RoomSummary{
		Path:           path,
		ActiveSessions: room.SessionCount(),
		RoomInfo:       room.Info(),
	}, nil
}

// SessionTotals returns registry statistics for monitoring and debugging
func (r *Registry) SessionTotals() map[string]int {
	sessions := 0
	rooms := 0
	r.rooms.Range(func(_ string, room *Room) bool {
		rooms++
		sessions += room.SessionCount()
		return true
	})
	return map[string]int{
		"active_rooms":    rooms,
		"active_sessions": sessions,
	}
}
