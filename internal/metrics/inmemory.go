package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UsersCreated           uint64
	UsersUpdated           uint64
	UsersDeleted           uint64
	EntitiesCreated        uint64
	EntitiesUpdated        uint64
	EntitiesDeleted        uint64
	CacheHits              uint64
	CacheMisses            uint64
	StoreDurationCount     uint64
	StoreDurationTotalNs   int64
	DuplicateEmailErrors   uint64
	OwnerNotFoundErrors    uint64
	OwnerHasEntitiesErrors uint64
	EventsPublished        uint64
	EventsDropped          uint64
	EventsConsumed         uint64
	EventsFailed           uint64
	EventsDeadLettered     uint64
	EventQueueDepth        int64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	usersCreated           uint64
	usersUpdated           uint64
	usersDeleted           uint64
	entitiesCreated        uint64
	entitiesUpdated        uint64
	entitiesDeleted        uint64
	cacheHits              uint64
	cacheMisses            uint64
	storeDurationCount     uint64
	storeDurationTotalNs   int64
	duplicateEmailErrors   uint64
	ownerNotFoundErrors    uint64
	ownerHasEntitiesErrors uint64
	eventsPublished        uint64
	eventsDropped          uint64
	eventsConsumed         uint64
	eventsFailed           uint64
	eventsDeadLettered     uint64
	eventQueueDepth        int64
}

var (
	_ Recorder    = (*InMemoryRecorder)(nil)
	_ Snapshotter = (*InMemoryRecorder)(nil)
)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		UsersCreated:           atomic.LoadUint64(&m.usersCreated),
		UsersUpdated:           atomic.LoadUint64(&m.usersUpdated),
		UsersDeleted:           atomic.LoadUint64(&m.usersDeleted),
		EntitiesCreated:        atomic.LoadUint64(&m.entitiesCreated),
		EntitiesUpdated:        atomic.LoadUint64(&m.entitiesUpdated),
		EntitiesDeleted:        atomic.LoadUint64(&m.entitiesDeleted),
		CacheHits:              atomic.LoadUint64(&m.cacheHits),
		CacheMisses:            atomic.LoadUint64(&m.cacheMisses),
		StoreDurationCount:     atomic.LoadUint64(&m.storeDurationCount),
		StoreDurationTotalNs:   atomic.LoadInt64(&m.storeDurationTotalNs),
		DuplicateEmailErrors:   atomic.LoadUint64(&m.duplicateEmailErrors),
		OwnerNotFoundErrors:    atomic.LoadUint64(&m.ownerNotFoundErrors),
		OwnerHasEntitiesErrors: atomic.LoadUint64(&m.ownerHasEntitiesErrors),
		EventsPublished:        atomic.LoadUint64(&m.eventsPublished),
		EventsDropped:          atomic.LoadUint64(&m.eventsDropped),
		EventsConsumed:         atomic.LoadUint64(&m.eventsConsumed),
		EventsFailed:           atomic.LoadUint64(&m.eventsFailed),
		EventsDeadLettered:     atomic.LoadUint64(&m.eventsDeadLettered),
		EventQueueDepth:        atomic.LoadInt64(&m.eventQueueDepth),
	}
}

// IncUserCreated increments user created counter.
func (m *InMemoryRecorder) IncUserCreated() {
	atomic.AddUint64(&m.usersCreated, 1)
}

// IncUserUpdated increments user updated counter.
func (m *InMemoryRecorder) IncUserUpdated() {
	atomic.AddUint64(&m.usersUpdated, 1)
}

// IncUserDeleted increments user deleted counter.
func (m *InMemoryRecorder) IncUserDeleted() {
	atomic.AddUint64(&m.usersDeleted, 1)
}

// IncEntityCreated increments entity created counter.
func (m *InMemoryRecorder) IncEntityCreated() {
	atomic.AddUint64(&m.entitiesCreated, 1)
}

// IncEntityUpdated increments entity updated counter.
func (m *InMemoryRecorder) IncEntityUpdated() {
	atomic.AddUint64(&m.entitiesUpdated, 1)
}

// IncEntityDeleted adds n to the entity deleted counter.
func (m *InMemoryRecorder) IncEntityDeleted(n int) {
	if n > 0 {
		atomic.AddUint64(&m.entitiesDeleted, uint64(n))
	}
}

// IncCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncCacheHit() {
	atomic.AddUint64(&m.cacheHits, 1)
}

// IncCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncCacheMiss() {
	atomic.AddUint64(&m.cacheMisses, 1)
}

// ObserveStoreDuration records the duration of a store read.
func (m *InMemoryRecorder) ObserveStoreDuration(duration time.Duration) {
	atomic.AddUint64(&m.storeDurationCount, 1)
	atomic.AddInt64(&m.storeDurationTotalNs, duration.Nanoseconds())
}

// IncConstraintViolation counts an integrity error by kind.
func (m *InMemoryRecorder) IncConstraintViolation(kind string) {
	switch kind {
	case ViolationDuplicateEmail:
		atomic.AddUint64(&m.duplicateEmailErrors, 1)
	case ViolationOwnerNotFound:
		atomic.AddUint64(&m.ownerNotFoundErrors, 1)
	case ViolationOwnerHasData:
		atomic.AddUint64(&m.ownerHasEntitiesErrors, 1)
	}
}

// IncEventPublished counts a data-change event by outcome.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	if status == "dropped" {
		atomic.AddUint64(&m.eventsDropped, 1)
		return
	}
	atomic.AddUint64(&m.eventsPublished, 1)
}

// IncEventConsumed counts a consumed data-change event by outcome.
func (m *InMemoryRecorder) IncEventConsumed(status string) {
	switch status {
	case "success":
		atomic.AddUint64(&m.eventsConsumed, 1)
	case "failed":
		atomic.AddUint64(&m.eventsFailed, 1)
	case "dead_lettered":
		atomic.AddUint64(&m.eventsDeadLettered, 1)
	}
}

// SetEventQueueDepth records the pending plus lag count of the consumer group.
func (m *InMemoryRecorder) SetEventQueueDepth(depth int64) {
	atomic.StoreInt64(&m.eventQueueDepth, depth)
}
