package interfaces

// SendHandle is the outbound half of one physical client connection
// ARCHITECTURAL DISCOVERY: Rooms hold send handles, never raw sockets, so the
// fan-out and session tables stay independent of the transport library
type SendHandle interface {
	// WriteText delivers one serialized text frame (thread-safe)
	// FUNCTIONAL DISCOVERY: Implementations serialize writes; an error means the
	// peer is gone or stalled and the caller should stop addressing it
	WriteText(payload []byte) error

	// WritePong answers a ping addressed to this connection only
	WritePong(appData []byte) error

	// WriteClose answers or initiates the close handshake
	WriteClose(code int, reason string) error

	// Close releases the underlying connection; safe to call more than once
	Close() error
}
