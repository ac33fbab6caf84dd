package handler

import (
	"fmt"
	"net/http"

	"github.com/coremodel/coremodel/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "coremodel_users_created_total %d\n", snap.UsersCreated)
	writeMetric(w, "coremodel_users_updated_total %d\n", snap.UsersUpdated)
	writeMetric(w, "coremodel_users_deleted_total %d\n", snap.UsersDeleted)

	writeMetric(w, "coremodel_entities_created_total %d\n", snap.EntitiesCreated)
	writeMetric(w, "coremodel_entities_updated_total %d\n", snap.EntitiesUpdated)
	writeMetric(w, "coremodel_entities_deleted_total %d\n", snap.EntitiesDeleted)

	writeMetric(w, "coremodel_cache_hits_total %d\n", snap.CacheHits)
	writeMetric(w, "coremodel_cache_misses_total %d\n", snap.CacheMisses)
	writeMetric(w, "coremodel_store_read_duration_seconds_count %d\n", snap.StoreDurationCount)
	writeMetric(w, "coremodel_store_read_duration_seconds_sum %.6f\n", float64(snap.StoreDurationTotalNs)/1e9)

	writeMetric(w, "coremodel_constraint_violations_total{kind=%q} %d\n", metrics.ViolationDuplicateEmail, snap.DuplicateEmailErrors)
	writeMetric(w, "coremodel_constraint_violations_total{kind=%q} %d\n", metrics.ViolationOwnerNotFound, snap.OwnerNotFoundErrors)
	writeMetric(w, "coremodel_constraint_violations_total{kind=%q} %d\n", metrics.ViolationOwnerHasData, snap.OwnerHasEntitiesErrors)

	writeMetric(w, "coremodel_events_published_total{status=\"success\"} %d\n", snap.EventsPublished)
	writeMetric(w, "coremodel_events_published_total{status=\"dropped\"} %d\n", snap.EventsDropped)

	writeMetric(w, "coremodel_events_consumed_total{status=\"success\"} %d\n", snap.EventsConsumed)
	writeMetric(w, "coremodel_events_consumed_total{status=\"failed\"} %d\n", snap.EventsFailed)
	writeMetric(w, "coremodel_events_consumed_total{status=\"dead_lettered\"} %d\n", snap.EventsDeadLettered)
	writeMetric(w, "coremodel_events_queue_depth %d\n", snap.EventQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
