package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrRoomNotFound   = errors.New("room not found")
	ErrImageNotFound  = errors.New("image not found")
)
