package models

import "time"

// StatusCount is the number of requests currently in one status.
type StatusCount struct {
	Status DemandeStatus `db:"status" json:"status"`
	Count  int           `db:"count" json:"count"`
}

// DashboardSummary aggregates request counts for the overview screen.
type DashboardSummary struct {
	Total       int           `json:"total"`
	ByStatus    []StatusCount `json:"by_status"`
	Archived    int           `json:"archived"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// SystemMetrics is a lightweight runtime snapshot served next to the dashboard.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	TransitionsTotal         uint64    `json:"transitions_total"`
	TransitionFailures       uint64    `json:"transition_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
