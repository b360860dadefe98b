package models

import "time"

// SystemMetrics summarises runtime counters for the metrics summary endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64               `json:"cache_hit_ratio"`
	CacheHits                uint64                `json:"cache_hits"`
	CacheMisses              uint64                `json:"cache_misses"`
	RequestsTotal            uint64                `json:"requests_total"`
	AverageRequestDurationMs float64               `json:"average_request_duration_ms"`
	AvailabilityDecisions    map[string]uint64     `json:"availability_decisions"`
	SkippedWindows           uint64                `json:"skipped_windows"`
	BookingsCreated          uint64                `json:"bookings_created"`
	Queues                   map[string]QueueStats `json:"queues,omitempty"`
	Goroutines               int                   `json:"goroutines"`
	GeneratedAt              time.Time             `json:"generated_at"`
}

// QueueStats reports background job counters for one named queue.
type QueueStats struct {
	Processed                uint64                `json:"processed"`
	Failed                   uint64                `json:"failed"`
	Dropped                  uint64                `json:"dropped"`
}
