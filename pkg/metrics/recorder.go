// Package metrics records append-only performance metrics and derives
// windowed statistics from them.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/models"
	"github.com/pario-ai/adcache/pkg/store"
	"github.com/pario-ai/adcache/pkg/telemetry"
)

// Namespace is the store partition holding metric records.
const Namespace = "metrics"

// DefaultRetentionDays is how long metric records are kept.
const DefaultRetentionDays = 30

// Recorder appends metric records. Every write is best effort: failures are
// logged and counted, never returned.
type Recorder struct {
	part  store.Partition
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// NewRecorder opens the metrics partition on s. A nil now means time.Now.
func NewRecorder(s store.Store, now func() time.Time, log zerolog.Logger) (*Recorder, error) {
	part, err := s.Partition(Namespace)
	if err != nil {
		return nil, fmt.Errorf("open metrics partition: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		part:  part,
		now:   now,
		newID: newMetricID,
		log:   log,
	}, nil
}

// newMetricID returns a UUIDv7: a millisecond timestamp followed by random bits.
func newMetricID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Now returns the recorder clock's current time.
func (r *Recorder) Now() time.Time { return r.now() }

// Record writes one immutable metric and returns it. A payload that does not
// belong to kind is logged and dropped.
func (r *Recorder) Record(ctx context.Context, kind models.MetricKind, payload models.Payload, duration time.Duration, success bool) models.Metric {
	m := models.Metric{
		ID:        r.newID(),
		Kind:      kind,
		Timestamp: r.now(),
		Duration:  duration,
		Success:   success,
		Payload:   payload,
	}
	err := r.write(ctx, m)
	telemetry.RecordMetricWrite(string(kind), err)
	if err != nil {
		r.log.Warn().Err(err).Str("kind", string(kind)).Str("id", m.ID).Msg("metric write failed")
	}
	return m
}

func (r *Recorder) write(ctx context.Context, m models.Metric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode metric: %w", err)
	}
	return r.part.Set(ctx, m.ID, raw)
}

// TrackImageOptimization records one compression run. A missing ratio is
// derived as optimized/original.
func (r *Recorder) TrackImageOptimization(ctx context.Context, opt models.ImageOptimization) models.Metric {
	if opt.CompressionRatio == 0 && opt.OriginalSize > 0 {
		opt.CompressionRatio = float64(opt.OptimizedSize) / float64(opt.OriginalSize)
	}
	d := time.Duration(opt.ProcessingTimeMs * float64(time.Millisecond))
	return r.Record(ctx, models.KindImageOptimization, opt, d, true)
}

// TrackAPICall records one external call site outcome as cache_hit or
// cache_miss. Success follows the reported status.
func (r *Recorder) TrackAPICall(ctx context.Context, call models.APICall, duration time.Duration) models.Metric {
	kind := models.KindCacheMiss
	if call.CacheHit {
		kind = models.KindCacheHit
	}
	if call.Status == "" {
		call.Status = models.StatusSuccess
	}
	return r.Record(ctx, kind, call, duration, call.Status == models.StatusSuccess)
}

// TrackVideoGeneration records one video render outcome.
func (r *Recorder) TrackVideoGeneration(ctx context.Context, v models.VideoGeneration, duration time.Duration, success bool) models.Metric {
	return r.Record(ctx, models.KindVideoGeneration, v, duration, success)
}

// TrackImageAnalysis records one product-image analysis outcome.
func (r *Recorder) TrackImageAnalysis(ctx context.Context, a models.ImageAnalysis, duration time.Duration, success bool) models.Metric {
	return r.Record(ctx, models.KindImageAnalysis, a, duration, success)
}

func (r *Recorder) TrackSceneGeneration(ctx context.Context, s models.SceneGeneration, duration time.Duration, success bool) models.Metric {
	return r.Record(ctx, models.KindSceneGeneration, s, duration, success)
}

func (r *Recorder) TrackTTSGeneration(ctx context.Context, t models.TTSGeneration, duration time.Duration, success bool) models.Metric {
	return r.Record(ctx, models.KindTTSGeneration, t, duration, success)
}

// TrackBatchGeneration succeeds only when every item did.
func (r *Recorder) TrackBatchGeneration(ctx context.Context, b models.BatchGeneration, duration time.Duration) models.Metric {
	return r.Record(ctx, models.KindBatchGeneration, b, duration, b.Items > 0 && b.Succeeded == b.Items)
}

// TrackUserAction records a dashboard interaction.
func (r *Recorder) TrackUserAction(ctx context.Context, action string, details map[string]string) models.Metric {
	return r.Record(ctx, models.KindUserAction, models.UserAction{Action: action, Details: details}, 0, true)
}

// List returns records with since <= timestamp <= until, oldest first.
// Undecodable records are skipped.
func (r *Recorder) List(ctx context.Context, since, until time.Time) ([]models.Metric, error) {
	lo, hi := since.UnixMilli(), until.UnixMilli()
	var out []models.Metric
	err := r.part.ForEach(ctx, func(key string, raw []byte) error {
		var m models.Metric
		if err := json.Unmarshal(raw, &m); err != nil {
			r.log.Debug().Err(err).Str("id", key).Msg("skipping undecodable metric")
			return nil
		}
		ts := m.Timestamp.UnixMilli()
		if ts < lo || ts > hi {
			return nil
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// SweepOlderThan deletes records stamped before cutoff, plus any record that
// cannot be decoded, and returns how many were removed.
func (r *Recorder) SweepOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	limit := cutoff.UnixMilli()
	var doomed []string
	err := r.part.ForEach(ctx, func(key string, raw []byte) error {
		var m models.Metric
		if err := json.Unmarshal(raw, &m); err != nil || m.Timestamp.UnixMilli() < limit {
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep metrics: %w", err)
	}

	removed := 0
	for _, key := range doomed {
		if err := r.part.Remove(ctx, key); err != nil {
			return removed, fmt.Errorf("sweep metrics: %w", err)
		}
		removed++
	}
	return removed, nil
}

// SweepOldMetrics removes records older than retentionDays; zero or less
// means DefaultRetentionDays.
func (r *Recorder) SweepOldMetrics(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := r.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	return r.SweepOlderThan(ctx, cutoff)
}

// Count returns the number of stored records.
func (r *Recorder) Count(ctx context.Context) (int, error) {
	return r.part.Len(ctx)
}
