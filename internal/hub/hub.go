package hub

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"roomhub/internal/room"
	"roomhub/pkg/interfaces"
)

// Hub delivers serialized payloads to the sessions of a room
// ARCHITECTURAL DISCOVERY: The hub owns no session state. Rooms hold their own
// session tables and the hub only walks them, so there is no central goroutine
// or channel between a dispatcher and its recipients.
type Hub struct {
	delivered *xsync.Counter
	pruned    *xsync.Counter
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		delivered: xsync.NewCounter(),
		pruned:    xsync.NewCounter(),
	}
}

type recipient struct {
	id     string
	handle interfaces.SendHandle
}

// Broadcast sends payload to every session in r and returns the delivery count
// FUNCTIONAL DISCOVERY: A recipient whose send fails is removed from the table
// and its handle closed; the failure is never returned to the caller.
// TECHNICAL DISCOVERY: Sends run concurrently and Broadcast waits for all of
// them, so one stalled peer costs at most its own write timeout and two
// broadcasts from the same dispatch path reach each recipient in call order.
func (h *Hub) Broadcast(r *room.Room, payload []byte) int {
	if r == nil {
		return 0
	}

	var recipients []recipient
	r.RangeSessions(func(id string, handle interfaces.SendHandle) bool {
		recipients = append(recipients, recipient{id: id, handle: handle})
		return true
	})
	if len(recipients) == 0 {
		return 0
	}

	failed := make([]bool, len(recipients))
	var wg sync.WaitGroup
	for i, rc := range recipients {
		wg.Add(1)
		go func(i int, rc recipient) {
			defer wg.Done()
			if err := rc.handle.WriteText(payload); err != nil {
				log.Warn().Str("module", "hub").Str("room", r.Path()).Str("session", rc.id).Err(err).
					Msg("send failed, pruning session")
				failed[i] = true
			}
		}(i, rc)
	}
	wg.Wait()

	delivered := 0
	for i, rc := range recipients {
		if !failed[i] {
			delivered++
			continue
		}
		if r.RemoveSession(rc.id) {
			h.pruned.Inc()
		}
		_ = rc.handle.Close()
	}
	h.delivered.Add(int64(delivered))
	return delivered
}

// Unicast sends payload to a single session handle
func (h *Hub) Unicast(handle interfaces.SendHandle, payload []byte) error {
	if handle == nil {
		return ErrNilHandle
	}
	if err := handle.WriteText(payload); err != nil {
		return err
	}
	h.delivered.Inc()
	return nil
}

// GetStats returns delivery statistics for monitoring and debugging
func (h *Hub) GetStats() map[string]int64 {
	return map[string]int64{
		"delivered": h.delivered.Value(),
		"pruned":    h.pruned.Value(),
	}
}
