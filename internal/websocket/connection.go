package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection implements the interfaces.SendHandle interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent race conditions
// Data frames go through one writer goroutine; control frames use WriteControl,
// which gorilla allows concurrently with everything else
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte // FUNCTIONAL DISCOVERY: buffered so a burst of broadcasts never blocks the dispatcher
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps conn and starts its writer goroutine
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
// TECHNICAL DISCOVERY: writeCh is never closed. Senders select on ctx instead, so
// a WriteText racing with shutdown cannot panic on a closed channel.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				// FUNCTIONAL DISCOVERY: A failed write poisons the handle so the next
				// fan-out sees ErrConnectionClosed and prunes it; closing the socket
				// also unblocks the session's read loop
				log.Debug().Str("module", "websocket").Err(err).Msg("write failed")
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteText queues one text frame for the writer goroutine
func (c *Connection) WriteText(payload []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- payload:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// WritePong answers a ping on this connection only
func (c *Connection) WritePong(appData []byte) error {
	return c.writeControl(websocket.PongMessage, appData)
}

// WritePing sends a heartbeat ping
func (c *Connection) WritePing() error {
	return c.writeControl(websocket.PingMessage, nil)
}

// WriteClose sends a close frame with code and reason
func (c *Connection) WriteClose(code int, reason string) error {
	return c.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func (c *Connection) writeControl(messageType int, data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	return c.conn.WriteControl(messageType, data, time.Now().Add(c.writeTimeout))
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
