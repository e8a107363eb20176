package room

import "errors"

var (
	ErrInvalidPattern = errors.New("invalid classification pattern")
	ErrNilHandle      = errors.New("send handle cannot be nil")
)
