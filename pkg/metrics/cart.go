package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// CartMetrics records draft synchronization and snapshot persistence outcomes.
type CartMetrics struct {
	syncDuration *prometheus.HistogramVec
	syncResults  *prometheus.CounterVec
	storage      *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_draft_sync_duration_seconds",
		Help:    "Duration of draft order sync calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	syncResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_draft_sync_total",
		Help: "Draft order sync calls by operation and result.",
	}, []string{"operation", "result"})
	storage := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_snapshot_writes_total",
		Help: "Cart snapshot writes by degradation stage and result.",
	}, []string{"stage", "result"})
	reg.MustRegister(syncDuration, syncResults, storage)
	return &CartMetrics{
		syncDuration: syncDuration,
		syncResults:  syncResults,
		storage:      storage,
	}
}

// ObserveSync records the duration and result of a draft sync operation.
func (c *CartMetrics) ObserveSync(operation string, duration time.Duration, err error) {
	if c == nil || c.syncDuration == nil {
		return
	}
	op := normalizeLabel(operation)
	c.syncDuration.WithLabelValues(op).Observe(duration.Seconds())
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	c.syncResults.WithLabelValues(op, result).Inc()
}

// IncSyncSkipped counts sync triggers that did not reach the backend.
func (c *CartMetrics) IncSyncSkipped(reason string) {
	if c == nil || c.syncResults == nil {
		return
	}
	c.syncResults.WithLabelValues(normalizeLabel(reason), ResultSkipped).Inc()
}

// ObserveStorage records a snapshot write attempt at the given degradation stage.
func (c *CartMetrics) ObserveStorage(stage string, err error) {
	if c == nil || c.storage == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	c.storage.WithLabelValues(normalizeLabel(stage), result).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
