package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"roomhub/internal/room"
	"roomhub/pkg/types"
)

// Handler upgrades /ws/{room} requests and runs one Session per connection
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from business logic;
// the handler only validates, upgrades and hands off to the session loop
type Handler struct {
	registry   *room.Registry
	dispatcher Dispatcher
	unicaster  Unicaster
	opts       Options
	upgrader   websocket.Upgrader

	sessions *xsync.MapOf[string, *Session]
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *room.Registry, dispatcher Dispatcher, unicaster Unicaster, opts Options) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		unicaster:  unicaster,
		opts:       opts,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Rooms are open namespaces; any origin may join
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		sessions: xsync.NewMapOf[string, *Session](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// HandleWebSocket validates the room path, upgrades, and starts the session
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("room")
	if path == "" {
		path = strings.TrimPrefix(r.URL.Path, "/ws/")
	}
	if !types.IsValidRoomPath(path) {
		http.Error(w, ErrInvalidRoomPath.Error(), http.StatusBadRequest)
		return
	}

	// FUNCTIONAL DISCOVERY: Upgrade after validation prevents resource waste
	// on invalid requests while providing proper HTTP error responses
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("module", "websocket").Err(err).Msg("upgrade failed")
		return
	}

	session := NewSession(uuid.NewString(), path, NewConnection(conn, h.opts.BufferSize, h.opts.WriteTimeout),
		h.registry, h.dispatcher, h.unicaster, h.opts)
	h.sessions.Store(session.ID(), session)

	// TECHNICAL DISCOVERY: Separate goroutine for connection lifecycle management
	// lets the HTTP handler return once the connection is hijacked
	go func() {
		defer h.sessions.Delete(session.ID())
		session.Run(h.ctx)
	}()
}

// ActiveSessions returns the number of live session loops
func (h *Handler) ActiveSessions() int {
	return h.sessions.Size()
}

// Shutdown sends a going-away close to every session and stops their loops
func (h *Handler) Shutdown() {
	h.sessions.Range(func(_ string, session *Session) bool {
		_ = session.conn.WriteClose(websocket.CloseGoingAway, "server shutting down")
		return true
	})
	h.cancel()
}
