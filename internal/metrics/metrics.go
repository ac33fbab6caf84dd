// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Constraint violation kinds.
const (
	ViolationDuplicateEmail = "duplicate_email"
	ViolationOwnerNotFound  = "owner_not_found"
	ViolationOwnerHasData   = "owner_has_entities"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// User metrics
	IncUserCreated()
	IncUserUpdated()
	IncUserDeleted()

	// Entity metrics
	IncEntityCreated()
	IncEntityUpdated()
	IncEntityDeleted(n int)

	// Read path metrics
	IncCacheHit()
	IncCacheMiss()
	ObserveStoreDuration(duration time.Duration)

	// Integrity metrics
	IncConstraintViolation(kind string)

	// Event stream metrics
	IncEventPublished(status string) // status: "success" or "dropped"
	IncEventConsumed(status string)  // status: "success", "failed" or "dead_lettered"
	SetEventQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
