// Package component holds the interfaces shared between the runtime pieces
// and the health and telemetry layers that observe them.
package component

import "context"

// HealthChecker health check item
type HealthChecker interface {
	// Check nil means healthy
	Check(ctx context.Context) error

	// Name check item name, e.g. "stream", "cache.store"
	Name() string
}
