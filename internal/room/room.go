package room

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"roomhub/pkg/interfaces"
	"roomhub/pkg/types"
)

// Settings are applied to every room the registry creates
type Settings struct {
	Width   float64
	Height  float64
	Ruleset *Ruleset
}

// DefaultSettings returns the fixed defaults for new rooms
func DefaultSettings() Settings {
	ruleset, _ := NewRuleset(types.DefaultPatterns)
	return Settings{
		Width:   types.DefaultRoomWidth,
		Height:  types.DefaultRoomHeight,
		Ruleset: ruleset,
	}
}

// Room holds all shared state for one collaborative space
// ARCHITECTURAL DISCOVERY: No room-wide lock. Entity and session tables are
// per-key concurrent maps; metadata and the pending queue each get their own
// mutex so a focal update never contends with a queue append or a fan-out.
type Room struct {
	path string

	entities *xsync.MapOf[int64, types.Entity]
	sessions *xsync.MapOf[string, interfaces.SendHandle]

	infoMu sync.Mutex
	info   types.RoomInfo

	pendingMu sync.Mutex
	pending   []types.ClassifiedMessage

	ruleset *Ruleset

	// Lifecycle signal raised when the last session leaves; nothing is
	// required to wait on it
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty room with default metadata and no focal state
func New(path string, settings Settings) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		path:     path,
		entities: xsync.NewMapOf[int64, types.Entity](),
		sessions: xsync.NewMapOf[string, interfaces.SendHandle](),
		info: types.RoomInfo{
			Width:  settings.Width,
			Height: settings.Height,
		},
		ruleset: settings.Ruleset,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Path returns the client-supplied room name
func (r *Room) Path() string {
	return r.path
}

// SnapshotEntities returns a point-in-time copy of the entity table
// FUNCTIONAL DISCOVERY: Order is irrelevant; the snapshot is sent once on join
func (r *Room) SnapshotEntities() []types.Entity {
	entities := make([]types.Entity, 0, r.entities.Size())
	r.entities.Range(func(_ int64, entity types.Entity) bool {
		entities = append(entities, entity)
		return true
	})
	return entities
}

// UpsertEntity inserts or replaces the entity stored under its id
func (r *Room) UpsertEntity(entity types.Entity) {
	r.entities.Store(entity.ID, entity)
}

// Entity returns the entity stored under id
func (r *Room) Entity(id int64) (types.Entity, bool) {
	return r.entities.Load(id)
}

// ReplaceEntity stores entity under id only when id is already present
// FUNCTIONAL DISCOVERY: The key is the requested id, not entity.ID; a body whose
// id differs is kept under the requested key
func (r *Room) ReplaceEntity(id int64, entity types.Entity) bool {
	replaced := false
	r.entities.Compute(id, func(current types.Entity, loaded bool) (types.Entity, bool) {
		if !loaded {
			return current, true
		}
		replaced = true
		return entity, false
	})
	return replaced
}

// RemoveEntity deletes the entity stored under id
func (r *Room) RemoveEntity(id int64) bool {
	_, removed := r.entities.LoadAndDelete(id)
	return removed
}

// EntityCount returns the number of entities in the room
func (r *Room) EntityCount() int {
	return r.entities.Size()
}

// UpdateFocal replaces focal point and focal range together
// TECHNICAL DISCOVERY: Both fields are swapped under the metadata lock and Info
// copies under the same lock, so no reader sees a mixed pair
func (r *Room) UpdateFocal(position types.Position, bounds types.Bounds) {
	point := [2]float64{position.X, position.Y}
	rect := [4]float64{bounds.X1, bounds.Y1, bounds.X2, bounds.Y2}

	r.infoMu.Lock()
	r.info.FocalPoint = &point
	r.info.FocalRange = &rect
	r.infoMu.Unlock()
}

// ClearFocal removes focal point and focal range together
func (r *Room) ClearFocal() {
	r.infoMu.Lock()
	r.info.FocalPoint = nil
	r.info.FocalRange = nil
	r.infoMu.Unlock()
}

// Info returns a deep copy of the room metadata
func (r *Room) Info() types.RoomInfo {
	r.infoMu.Lock()
	defer r.infoMu.Unlock()

	info := r.info
	if r.info.FocalPoint != nil {
		point := *r.info.FocalPoint
		info.FocalPoint = &point
	}
	if r.info.FocalRange != nil {
		rect := *r.info.FocalRange
		info.FocalRange = &rect
	}
	return info
}

// Classify evaluates the ruleset and returns matched pattern indices
func (r *Room) Classify(text string) []int {
	return r.ruleset.Match(text)
}

// EnqueuePending appends a classified message for the external consumer
func (r *Room) EnqueuePending(msg types.ClassifiedMessage) {
	r.pendingMu.Lock()
	r.pending = append(r.pending, msg)
	r.pendingMu.Unlock()
}

// PendingMessages returns a copy of the pending queue without draining it
func (r *Room) PendingMessages() []types.ClassifiedMessage {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	out := make([]types.ClassifiedMessage, len(r.pending))
	copy(out, r.pending)
	return out
}

// DrainPending removes and returns everything queued so far
func (r *Room) DrainPending() []types.ClassifiedMessage {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	out := r.pending
	r.pending = nil
	return out
}

// AddSession registers a send handle and refreshes the active-session count
func (r *Room) AddSession(id string, handle interfaces.SendHandle) error {
	if handle == nil {
		return ErrNilHandle
	}
	r.sessions.Store(id, handle)
	r.syncSessionCount()
	return nil
}

// RemoveSession deregisters id and refreshes the active-session count
// FUNCTIONAL DISCOVERY: Idempotent; the fan-out prune and the connection's own
// teardown may both remove the same session
func (r *Room) RemoveSession(id string) bool {
	_, removed := r.sessions.LoadAndDelete(id)
	r.syncSessionCount()
	return removed
}

// Session returns the send handle registered under id
func (r *Room) Session(id string) (interfaces.SendHandle, bool) {
	return r.sessions.Load(id)
}

// SessionCount returns the number of registered sessions
func (r *Room) SessionCount() int {
	return r.sessions.Size()
}

// RangeSessions calls fn for each registered session until fn returns false
func (r *Room) RangeSessions(fn func(id string, handle interfaces.SendHandle) bool) {
	r.sessions.Range(fn)
}

func (r *Room) syncSessionCount() {
	r.infoMu.Lock()
	r.info.ActiveSessions = r.sessions.Size()
	r.infoMu.Unlock()
}

// Cancel raises the lifecycle signal; later calls are no-ops
func (r *Room) Cancel() {
	if r.ctx.Err() == nil {
		log.Debug().Str("module", "room").Str("path", r.path).Msg("lifecycle signal raised")
	}
	r.cancel()
}

// Done is closed once the lifecycle signal has been raised
func (r *Room) Done() <-chan struct{} {
	return r.ctx.Done()
}

// Cancelled reports whether the lifecycle signal has been raised
func (r *Room) Cancelled() bool {
	return r.ctx.Err() != nil
}
