package hub

import "errors"

// Fan-out error types
var (
	ErrNilHandle = errors.New("send handle cannot be nil")
)
