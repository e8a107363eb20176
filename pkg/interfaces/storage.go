//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=../../internal/mocks/mock_storage.go -package=mocks
package interfaces

import (
	"context"
)

// ImageStore persists binary uploads received over room connections
// ARCHITECTURAL DISCOVERY: The hub only ever writes; identities are not tracked
// after the reference has been broadcast
type ImageStore interface {
	// Store persists data under a freshly generated identifier and returns it
	// FUNCTIONAL DISCOVERY: Failure aborts handling of the one frame only
	Store(ctx context.Context, data []byte) (string, error)

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close flushes and releases the backend
	Close() error
}
