package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncUserCreated is a no-op.
func (n *NoopRecorder) IncUserCreated() {}

// IncUserUpdated is a no-op.
func (n *NoopRecorder) IncUserUpdated() {}

// IncUserDeleted is a no-op.
func (n *NoopRecorder) IncUserDeleted() {}

// IncEntityCreated is a no-op.
func (n *NoopRecorder) IncEntityCreated() {}

// IncEntityUpdated is a no-op.
func (n *NoopRecorder) IncEntityUpdated() {}

// IncEntityDeleted is a no-op.
func (n *NoopRecorder) IncEntityDeleted(int) {}

// IncCacheHit is a no-op.
func (n *NoopRecorder) IncCacheHit() {}

// IncCacheMiss is a no-op.
func (n *NoopRecorder) IncCacheMiss() {}

// ObserveStoreDuration is a no-op.
func (n *NoopRecorder) ObserveStoreDuration(time.Duration) {}

// IncConstraintViolation is a no-op.
func (n *NoopRecorder) IncConstraintViolation(string) {}

// IncEventPublished is a no-op.
func (n *NoopRecorder) IncEventPublished(string) {}

// IncEventConsumed is a no-op.
func (n *NoopRecorder) IncEventConsumed(string) {}

// SetEventQueueDepth is a no-op.
func (n *NoopRecorder) SetEventQueueDepth(int64) {}
