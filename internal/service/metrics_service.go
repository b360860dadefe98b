package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/tutorlink-api/internal/models"
	"github.com/noah-isme/tutorlink-api/pkg/availability"
	"github.com/noah-isme/tutorlink-api/pkg/jobs"
)

// QueueStatsSource reports counters for a background queue. *jobs.Queue satisfies it.
type QueueStatsSource interface {
	Stats() jobs.Stats
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	skippedWindows  prometheus.Counter
	bookings        *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	skippedCount         uint64
	bookingsCreated      uint64
	decisionCounts       map[availability.Reason]*uint64

	queueMu sync.RWMutex
	queues  map[string]QueueStatsSource
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_decisions_total",
		Help: "Availability checks by outcome reason",
	}, []string{"reason"})

	skippedWindows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_windows_skipped_total",
		Help: "Malformed availability windows skipped during checks",
	})

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookings_total",
		Help: "Booking lifecycle events by resulting status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, decisions, skippedWindows, bookings, goroutines)

	counts := make(map[availability.Reason]*uint64, len(availability.Reasons()))
	for _, reason := range availability.Reasons() {
		counts[reason] = new(uint64)
	}

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
		decisions:       decisions,
		skippedWindows:  skippedWindows,
		bookings:        bookings,
		decisionCounts:  counts,
		queues:          make(map[string]QueueStatsSource),
	}
}

// ObserveQueue exports a queue's processed, failed and dropped counters under the given name.
func (m *MetricsService) ObserveQueue(name string, source QueueStatsSource) error {
	if m == nil || source == nil {
		return nil
	}
	labels := prometheus.Labels{"queue": name}
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "jobs_processed_total",
			Help:        "Background jobs handled successfully",
			ConstLabels: labels,
		}, func() float64 { return float64(source.Stats().Processed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "jobs_failed_total",
			Help:        "Background jobs that exhausted their retries",
			ConstLabels: labels,
		}, func() float64 { return float64(source.Stats().Failed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "jobs_dropped_total",
			Help:        "Background jobs rejected before reaching a worker",
			ConstLabels: labels,
		}, func() float64 { return float64(source.Stats().Dropped) }),
	}
	for _, collector := range collectors {
		if err := m.registry.Register(collector); err != nil {
			return fmt.Errorf("register queue %s metrics: %w", name, err)
		}
	}

	m.queueMu.Lock()
	m.queues[name] = source
	m.queueMu.Unlock()
	return nil
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database timing for a labelled unit of work.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordAvailabilityDecision counts one matcher outcome and the malformed windows it skipped.
func (m *MetricsService) RecordAvailabilityDecision(reason availability.Reason, skipped int) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(reason)).Inc()
	if counter, ok := m.decisionCounts[reason]; ok {
		atomic.AddUint64(counter, 1)
	}
	if skipped > 0 {
		m.skippedWindows.Add(float64(skipped))
		atomic.AddUint64(&m.skippedCount, uint64(skipped))
	}
}

// RecordBooking counts a booking entering the given status.
func (m *MetricsService) RecordBooking(status models.BookingStatus) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(string(status)).Inc()
	if status == models.BookingPending {
		atomic.AddUint64(&m.bookingsCreated, 1)
	}
}

// Snapshot returns aggregated metrics suitable for the summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	decisions := make(map[string]uint64, len(m.decisionCounts))
	for reason, counter := range m.decisionCounts {
		decisions[string(reason)] = atomic.LoadUint64(counter)
	}

	var queues map[string]models.QueueStats
	m.queueMu.RLock()
	if len(m.queues) > 0 {
		queues = make(map[string]models.QueueStats, len(m.queues))
		for name, source := range m.queues {
			stats := source.Stats()
			queues[name] = models.QueueStats{Processed: stats.Processed, Failed: stats.Failed, Dropped: stats.Dropped}
		}
	}
	m.queueMu.RUnlock()

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		AvailabilityDecisions:    decisions,
		SkippedWindows:           atomic.LoadUint64(&m.skippedCount),
		BookingsCreated:          atomic.LoadUint64(&m.bookingsCreated),
		Queues:                   queues,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
