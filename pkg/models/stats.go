package models

import "time"

// PerformanceStats is derived from the metric records of one time window.
// It is never persisted.
type PerformanceStats struct {
	WindowHours       int                    `json:"window_hours"`
	From              time.Time              `json:"from"`
	To                time.Time              `json:"to"`
	ImageOptimization ImageOptimizationStats `json:"image_optimization"`
	APICalls          APICallStats           `json:"api_calls"`
	Cache             CacheStats             `json:"cache"`
	VideoGeneration   VideoGenerationStats   `json:"video_generation"`
	UserActions       map[string]int         `json:"user_actions"`
	TotalMetrics      int                    `json:"total_metrics"`
}

// ImageOptimizationStats aggregates image_optimization records. Averages are
// unweighted means across records.
type ImageOptimizationStats struct {
	Count                   int     `json:"count"`
	TotalOriginalSize       int64   `json:"total_original_size"`
	TotalOptimizedSize      int64   `json:"total_optimized_size"`
	TotalSavings            int64   `json:"total_savings"`
	AverageCompressionRatio float64 `json:"average_compression_ratio"`
	AverageProcessingTimeMs float64 `json:"average_processing_time_ms"`
}

// PercentSaved converts the average optimized/original ratio into a
// "percentage saved" figure for display.
func (s ImageOptimizationStats) PercentSaved() float64 {
	if s.Count == 0 {
		return 0
	}
	return (1 - s.AverageCompressionRatio) * 100
}

// APICallStats aggregates cache_hit and cache_miss records.
type APICallStats struct {
	Total             int             `json:"total"`
	Successful        int             `json:"successful"`
	Failed            int             `json:"failed"`
	AverageDurationMs float64         `json:"average_duration_ms"`
	TotalCost         float64         `json:"total_cost"`
	ByEndpoint        []EndpointStats `json:"by_endpoint,omitempty"`
}

// EndpointStats is the per-endpoint slice of APICallStats.
type EndpointStats struct {
	Endpoint          string  `json:"endpoint"`
	Calls             int     `json:"calls"`
	Hits              int     `json:"hits"`
	Misses            int     `json:"misses"`
	AverageDurationMs float64 `json:"average_duration_ms"`
	Cost              float64 `json:"cost"`
}

// CacheStats reports cache economics for the window.
type CacheStats struct {
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	CostSaved float64 `json:"cost_saved"`
}

// VideoGenerationStats aggregates video_generation records.
type VideoGenerationStats struct {
	Total                  int     `json:"total"`
	Successful             int     `json:"successful"`
	Failed                 int     `json:"failed"`
	SuccessRate            float64 `json:"success_rate"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}
