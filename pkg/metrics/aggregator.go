package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/pario-ai/adcache/pkg/models"
	"github.com/pario-ai/adcache/pkg/telemetry"
)

// DefaultUnitCost is the assumed price in USD of one external AI call.
const DefaultUnitCost = 0.003

// DefaultWindowHours is used when a caller asks for a non-positive window.
const DefaultWindowHours = 24

// MaxWindowHours bounds a stats window to ten years. Larger windows are
// clamped so the window length stays within time.Duration.
const MaxWindowHours = 24 * 365 * 10

// Aggregator derives PerformanceStats from recorded metrics. It never writes.
type Aggregator struct {
	rec      *Recorder
	unitCost float64
}

// NewAggregator reads through rec and prices calls at unitCost.
func NewAggregator(rec *Recorder, unitCost float64) *Aggregator {
	return &Aggregator{rec: rec, unitCost: unitCost}
}

// UnitCost returns the configured price of one external call.
func (a *Aggregator) UnitCost() float64 { return a.unitCost }

// PerformanceStats is the dashboard read entry point.
func (a *Aggregator) PerformanceStats(ctx context.Context, windowHours int) (models.PerformanceStats, error) {
	if windowHours <= 0 {
		windowHours = DefaultWindowHours
	}
	windowHours = min(windowHours, MaxWindowHours)
	return a.ComputeStats(ctx, time.Duration(windowHours)*time.Hour)
}

// ComputeStats summarises the records stamped within [now-window, now].
func (a *Aggregator) ComputeStats(ctx context.Context, window time.Duration) (models.PerformanceStats, error) {
	start := time.Now()
	defer func() { telemetry.StatsDuration.Observe(time.Since(start).Seconds()) }()

	to := a.rec.Now()
	from := to.Add(-window)
	records, err := a.rec.List(ctx, from, to)
	if err != nil {
		return models.PerformanceStats{}, err
	}

	stats := Summarize(records, a.unitCost)
	stats.WindowHours = int(window / time.Hour)
	stats.From = from
	stats.To = to
	return stats, nil
}

// Summarize computes statistics over records. Averages are unweighted means
// across records; a record without a duration contributes zero.
func Summarize(records []models.Metric, unitCost float64) models.PerformanceStats {
	var (
		stats = models.PerformanceStats{
			UserActions:  map[string]int{},
			TotalMetrics: len(records),
		}

		ratioSum, procSum float64
		apiDurSum         float64
		videoDurSum       float64
		endpoints         = map[string]*endpointAcc{}
	)

	for _, m := range records {
		switch p := m.Payload.(type) {
		case models.ImageOptimization:
			io := &stats.ImageOptimization
			io.Count++
			io.TotalOriginalSize += p.OriginalSize
			io.TotalOptimizedSize += p.OptimizedSize
			ratioSum += p.CompressionRatio
			procSum += p.ProcessingTimeMs

		case models.APICall:
			api := &stats.APICalls
			api.Total++
			if m.Success {
				api.Successful++
			}
			ms := durationMs(m.Duration)
			apiDurSum += ms

			hit := m.Kind == models.KindCacheHit
			if hit {
				stats.Cache.Hits++
			} else {
				stats.Cache.Misses++
			}

			acc, ok := endpoints[p.Endpoint]
			if !ok {
				acc = &endpointAcc{}
				endpoints[p.Endpoint] = acc
			}
			acc.calls++
			acc.durSum += ms
			if hit {
				acc.hits++
			} else {
				acc.misses++
			}

		case models.VideoGeneration:
			v := &stats.VideoGeneration
			v.Total++
			if m.Success {
				v.Successful++
			}
			videoDurSum += durationMs(m.Duration)

		case models.UserAction:
			stats.UserActions[p.Action]++
		}
	}

	if n := stats.ImageOptimization.Count; n > 0 {
		io := &stats.ImageOptimization
		io.TotalSavings = io.TotalOriginalSize - io.TotalOptimizedSize
		io.AverageCompressionRatio = ratioSum / float64(n)
		io.AverageProcessingTimeMs = procSum / float64(n)
	}

	api := &stats.APICalls
	api.Failed = api.Total - api.Successful
	if api.Total > 0 {
		api.AverageDurationMs = apiDurSum / float64(api.Total)
	}
	api.TotalCost = float64(stats.Cache.Misses) * unitCost
	api.ByEndpoint = endpointStats(endpoints, unitCost)

	c := &stats.Cache
	c.HitRate = percent(c.Hits, c.Hits+c.Misses)
	c.CostSaved = float64(c.Hits) * unitCost

	v := &stats.VideoGeneration
	v.Failed = v.Total - v.Successful
	v.SuccessRate = percent(v.Successful, v.Total)
	if v.Total > 0 {
		v.AverageDurationSeconds = videoDurSum / float64(v.Total) / 1000
	}

	return stats
}

type endpointAcc struct {
	calls, hits, misses int
	durSum              float64
}

func endpointStats(acc map[string]*endpointAcc, unitCost float64) []models.EndpointStats {
	if len(acc) == 0 {
		return nil
	}
	out := make([]models.EndpointStats, 0, len(acc))
	for name, a := range acc {
		out = append(out, models.EndpointStats{
			Endpoint:          name,
			Calls:             a.calls,
			Hits:              a.hits,
			Misses:            a.misses,
			AverageDurationMs: a.durSum / float64(a.calls),
			Cost:              float64(a.misses) * unitCost,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
