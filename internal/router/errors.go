package router

import "errors"

// Dispatch error types
var (
	ErrStorageFailure   = errors.New("image storage failed")
	ErrUnknownFrameKind = errors.New("unknown frame kind")
	ErrNilRoom          = errors.New("room cannot be nil")
)
