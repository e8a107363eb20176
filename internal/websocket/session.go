package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"roomhub/internal/room"
	"roomhub/internal/router"
	"roomhub/pkg/interfaces"
)

// State is a session's position in its connection lifecycle
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Dispatcher applies one inbound data frame to a room
type Dispatcher interface {
	Dispatch(ctx context.Context, r *room.Room, kind router.FrameKind, data []byte) (router.Effect, error)
}

// Unicaster delivers a payload to one session only
type Unicaster interface {
	Unicast(handle interfaces.SendHandle, payload []byte) error
}

// Options tune heartbeat and frame limits for each session
type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultOptions returns the heartbeat and buffer defaults
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     100,
		MaxMessageSize: 16 << 20,
	}
}

// Session is the per-connection control loop
// ARCHITECTURAL DISCOVERY: One goroutine owns the read side for the whole
// lifetime of the connection and drives Connecting -> Joined -> Closing -> Closed.
// Writes never happen here directly; they go through the Connection handle.
type Session struct {
	id         string
	path       string
	conn       *Connection
	registry   *room.Registry
	dispatcher Dispatcher
	unicaster  Unicaster
	opts       Options
	logger     zerolog.Logger

	state     atomic.Int32
	room      *room.Room
	closeCode int
	closeText string
}

// NewSession prepares a session in the Connecting state
func NewSession(id, path string, conn *Connection, registry *room.Registry, dispatcher Dispatcher, unicaster Unicaster, opts Options) *Session {
	return &Session{
		id:         id,
		path:       path,
		conn:       conn,
		registry:   registry,
		dispatcher: dispatcher,
		unicaster:  unicaster,
		opts:       opts,
		logger:     log.With().Str("module", "websocket").Str("room", path).Str("session", id).Logger(),
		closeCode:  websocket.CloseNormalClosure,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run drives the session until the peer disconnects or ctx is cancelled
func (s *Session) Run(ctx context.Context) {
	if err := s.join(); err != nil {
		s.logger.Error().Err(err).Msg("join failed")
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.heartbeat(ctx)

	err := s.readLoop(ctx)

	s.state.Store(int32(StateClosing))
	s.answerClose(err)

	s.leave()
	s.state.Store(int32(StateClosed))
}

// join registers the session and sends the initial entity snapshot
func (s *Session) join() error {
	r := s.registry.GetOrCreate(s.path)
	if err := r.AddSession(s.id, s.conn); err != nil {
		return err
	}
	s.room = r
	s.state.Store(int32(StateJoined))
	s.logger.Info().Int("active_sessions", r.SessionCount()).Msg("session joined")

	// FUNCTIONAL DISCOVERY: A failed snapshot is logged only; the session still joins
	snapshot, err := json.Marshal(r.SnapshotEntities())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode entity snapshot")
		return nil
	}
	if err := s.unicaster.Unicast(s.conn, snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send entity snapshot")
	}
	return nil
}

// readLoop feeds data frames to the dispatcher until a close or transport error
func (s *Session) readLoop(ctx context.Context) error {
	ws := s.conn.conn
	if s.opts.MaxMessageSize > 0 {
		ws.SetReadLimit(s.opts.MaxMessageSize)
	}
	if err := ws.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})
	ws.SetPingHandler(func(appData string) error {
		if err := s.conn.WritePong([]byte(appData)); err != nil && !errors.Is(err, ErrConnectionClosed) {
			s.logger.Debug().Err(err).Msg("failed to answer ping")
		}
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})
	// TECHNICAL DISCOVERY: Returning nil suppresses gorilla's automatic echo; the
	// close is answered once in answerClose with the peer's own code and reason
	ws.SetCloseHandler(func(code int, text string) error {
		s.closeCode = code
		s.closeText = text
		return nil
	})

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("%w: %d %s", ErrConnectionClosed, closeErr.Code, closeErr.Text)
			}
			return err
		}

		var kind router.FrameKind
		switch messageType {
		case websocket.TextMessage:
			kind = router.TextFrame
		case websocket.BinaryMessage:
			kind = router.BinaryFrame
		default:
			continue
		}

		effect, err := s.dispatcher.Dispatch(ctx, s.room, kind, data)
		switch {
		case errors.Is(err, router.ErrStorageFailure):
			s.logger.Error().Err(err).Int("bytes", len(data)).Msg("binary frame dropped")
		case err != nil:
			s.logger.Warn().Err(err).Stringer("effect", effect).Msg("dispatch failed")
		default:
			s.logger.Debug().Stringer("effect", effect).Msg("frame dispatched")
		}
	}
}

// answerClose completes the close handshake, best-effort
func (s *Session) answerClose(readErr error) {
	if errors.Is(readErr, ErrConnectionClosed) {
		s.logger.Debug().Int("code", s.closeCode).Msg("close frame received")
		code := s.closeCode
		if code == websocket.CloseNoStatusReceived {
			code = websocket.CloseNormalClosure
		}
		_ = s.conn.WriteClose(code, s.closeText)
		return
	}
	s.logger.Warn().Err(readErr).Msg("transport error")
	_ = s.conn.WriteClose(websocket.CloseGoingAway, "")
}

// leave deregisters the session and evaluates room teardown
// FUNCTIONAL DISCOVERY: RemoveSession is idempotent, so a fan-out prune that
// already removed this session is harmless here
func (s *Session) leave() {
	_ = s.conn.Close()
	s.room.RemoveSession(s.id)
	remaining := s.room.SessionCount()
	s.logger.Info().Int("active_sessions", remaining).Msg("session left")

	// A join that raced in keeps the room registered and uncancelled
	if remaining == 0 && s.registry.RemoveIfEmpty(s.path, s.room) {
		s.room.Cancel()
	}
}

// heartbeat pings the peer until the session ends
func (s *Session) heartbeat(ctx context.Context) {
	if s.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WritePing(); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-ctx.Done():
			// Shutdown or end of read loop; closing unblocks ReadMessage
			_ = s.conn.Close()
			return
		case <-s.conn.Done():
			return
		}
	}
}
