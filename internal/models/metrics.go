package models

import "time"

// SystemMetrics is a point-in-time summary of instrumentation for operators.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	TransitionsTotal         uint64    `json:"transitionsTotal"`
	RejectionsTotal          uint64    `json:"rejectionsTotal"`
	AutoApprovedTotal        uint64    `json:"autoApprovedTotal"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
