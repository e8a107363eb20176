package types

import "errors"

// ARCHITECTURAL DISCOVERY: Decode mismatch is a classification signal, not a failure;
// callers fall through to the next schema when they see it
var (
	ErrDecodeMismatch = errors.New("payload does not match schema")
	ErrEmptyPayload   = errors.New("payload is empty")
)
