package metrics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pario-ai/adcache/pkg/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEmptyWindow(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	stats, err := NewAggregator(r, DefaultUnitCost).PerformanceStats(context.Background(), 24)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalMetrics != 0 || stats.Cache.HitRate != 0 || stats.VideoGeneration.SuccessRate != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
	if stats.WindowHours != 24 {
		t.Errorf("expected window 24, got %d", stats.WindowHours)
	}
}

func TestHitRateAndCost(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	ctx := context.Background()

	for range 3 {
		r.TrackAPICall(ctx, models.APICall{Endpoint: "analyzeProductImage", CacheHit: true, Status: models.StatusSuccess}, 10*time.Millisecond)
	}
	r.TrackAPICall(ctx, models.APICall{Endpoint: "generateVideo", Status: models.StatusSuccess, Cost: 0.003}, 50*time.Millisecond)

	stats, err := NewAggregator(r, 0.003).PerformanceStats(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cache.Hits != 3 || stats.Cache.Misses != 1 {
		t.Fatalf("expected 3 hits 1 miss, got %+v", stats.Cache)
	}
	if !approx(stats.Cache.HitRate, 75) {
		t.Errorf("expected hit rate 75, got %v", stats.Cache.HitRate)
	}
	if !approx(stats.Cache.CostSaved, 3*0.003) {
		t.Errorf("expected cost saved 0.009, got %v", stats.Cache.CostSaved)
	}
	if !approx(stats.APICalls.TotalCost, 0.003) {
		t.Errorf("expected total cost 0.003, got %v", stats.APICalls.TotalCost)
	}
	if !approx(stats.APICalls.AverageDurationMs, 20) {
		t.Errorf("expected mean duration 20ms, got %v", stats.APICalls.AverageDurationMs)
	}

	if len(stats.APICalls.ByEndpoint) != 2 {
		t.Fatalf("expected 2 endpoints, got %+v", stats.APICalls.ByEndpoint)
	}
	ep := stats.APICalls.ByEndpoint[0]
	if ep.Endpoint != "analyzeProductImage" || ep.Hits != 3 || ep.Cost != 0 {
		t.Errorf("unexpected endpoint stats %+v", ep)
	}
}

func TestWindowExcludesOldRecords(t *testing.T) {
	r, _, clk := newTestRecorder(t)
	ctx := context.Background()
	now := clk.now

	clk.now = now.Add(-25 * time.Hour)
	r.TrackUserAction(ctx, "old", nil)
	clk.now = now.Add(-24*time.Hour - time.Millisecond)
	r.TrackUserAction(ctx, "just outside", nil)
	clk.now = now.Add(-24 * time.Hour)
	r.TrackUserAction(ctx, "edge", nil)
	clk.now = now
	r.TrackUserAction(ctx, "fresh", nil)

	stats, err := NewAggregator(r, DefaultUnitCost).PerformanceStats(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalMetrics != 2 {
		t.Errorf("expected 2 metrics in window, got %d", stats.TotalMetrics)
	}
	if stats.UserActions["old"] != 0 || stats.UserActions["edge"] != 1 {
		t.Errorf("unexpected user actions %v", stats.UserActions)
	}
}

func TestImageOptimizationAverages(t *testing.T) {
	records := []models.Metric{
		{Kind: models.KindImageOptimization, Payload: models.ImageOptimization{
			OriginalSize: 1000, OptimizedSize: 500, CompressionRatio: 0.5, ProcessingTimeMs: 10,
		}},
		{Kind: models.KindImageOptimization, Payload: models.ImageOptimization{
			OriginalSize: 100000, OptimizedSize: 90000, CompressionRatio: 0.9, ProcessingTimeMs: 30,
		}},
	}
	s := Summarize(records, DefaultUnitCost).ImageOptimization

	if s.Count != 2 || s.TotalOriginalSize != 101000 || s.TotalOptimizedSize != 90500 {
		t.Errorf("unexpected totals %+v", s)
	}
	if s.TotalSavings != 10500 {
		t.Errorf("expected savings 10500, got %d", s.TotalSavings)
	}
	// unweighted: the large image does not dominate
	if !approx(s.AverageCompressionRatio, 0.7) {
		t.Errorf("expected mean ratio 0.7, got %v", s.AverageCompressionRatio)
	}
	if !approx(s.AverageProcessingTimeMs, 20) {
		t.Errorf("expected mean processing 20ms, got %v", s.AverageProcessingTimeMs)
	}
	if !approx(s.PercentSaved(), 30) {
		t.Errorf("expected 30%% saved, got %v", s.PercentSaved())
	}
}

func TestVideoGenerationStats(t *testing.T) {
	records := []models.Metric{
		{Kind: models.KindVideoGeneration, Success: true, Duration: 60 * time.Second, Payload: models.VideoGeneration{}},
		{Kind: models.KindVideoGeneration, Success: true, Duration: 90 * time.Second, Payload: models.VideoGeneration{}},
		{Kind: models.KindVideoGeneration, Success: false, Duration: 30 * time.Second, Payload: models.VideoGeneration{ErrorMessage: "timeout"}},
		{Kind: models.KindVideoGeneration, Success: false, Payload: models.VideoGeneration{}},
	}
	v := Summarize(records, DefaultUnitCost).VideoGeneration

	if v.Total != 4 || v.Successful != 2 || v.Failed != 2 {
		t.Errorf("unexpected counts %+v", v)
	}
	if !approx(v.SuccessRate, 50) {
		t.Errorf("expected success rate 50, got %v", v.SuccessRate)
	}
	// (60+90+30+0)/4 seconds
	if !approx(v.AverageDurationSeconds, 45) {
		t.Errorf("expected 45s average, got %v", v.AverageDurationSeconds)
	}
}

func TestStatsDoNotMutate(t *testing.T) {
	r, part, _ := newTestRecorder(t)
	ctx := context.Background()
	r.TrackAPICall(ctx, models.APICall{Endpoint: "e"}, 0)

	agg := NewAggregator(r, DefaultUnitCost)
	first, _ := agg.PerformanceStats(ctx, 24)
	second, _ := agg.PerformanceStats(ctx, 1)
	if first.TotalMetrics != second.TotalMetrics {
		t.Errorf("overlapping windows disagree: %d vs %d", first.TotalMetrics, second.TotalMetrics)
	}
	if n, _ := part.Len(ctx); n != 1 {
		t.Errorf("stats should not change the store, got %d records", n)
	}
}

func TestMissThenHitScenario(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	ctx := context.Background()
	agg := NewAggregator(r, 0.003)

	r.TrackAPICall(ctx, models.APICall{
		Endpoint: "analyzeProductImage", CacheHit: false, Cost: 0.003, Status: models.StatusSuccess,
	}, 1200*time.Millisecond)

	stats, err := agg.PerformanceStats(ctx, 24)
	if err != nil {
		t.Fatal(err)
	}
	if stats.APICalls.Total != 1 || stats.Cache.Misses != 1 || stats.Cache.HitRate != 0 {
		t.Errorf("after miss: %+v %+v", stats.APICalls, stats.Cache)
	}
	if !approx(stats.APICalls.TotalCost, 0.003) {
		t.Errorf("after miss: total cost %v", stats.APICalls.TotalCost)
	}

	r.TrackAPICall(ctx, models.APICall{
		Endpoint: "analyzeProductImage", CacheHit: true, Cost: 0, Status: models.StatusSuccess,
	}, 5*time.Millisecond)

	stats, _ = agg.PerformanceStats(ctx, 24)
	if stats.Cache.Hits != 1 || stats.Cache.Misses != 1 {
		t.Errorf("after hit: %+v", stats.Cache)
	}
	if !approx(stats.Cache.HitRate, 50) || !approx(stats.Cache.CostSaved, 0.003) {
		t.Errorf("after hit: rate %v saved %v", stats.Cache.HitRate, stats.Cache.CostSaved)
	}
}

func TestHugeWindowIsClamped(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	ctx := context.Background()
	r.TrackUserAction(ctx, "export", nil)

	stats, err := NewAggregator(r, DefaultUnitCost).PerformanceStats(ctx, 3_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if stats.WindowHours != MaxWindowHours {
		t.Errorf("expected window clamped to %d, got %d", MaxWindowHours, stats.WindowHours)
	}
	if stats.TotalMetrics != 1 {
		t.Errorf("expected the recorded action in the window, got %d", stats.TotalMetrics)
	}
}
