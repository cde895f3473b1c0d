package metrics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/models"
	"github.com/pario-ai/adcache/pkg/store/memory"
	"github.com/pario-ai/adcache/pkg/store/sqlite"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestRecorder(t *testing.T) (*Recorder, *memory.Partition, *clock) {
	t.Helper()
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	s := memory.New()
	r, err := NewRecorder(s, clk.Now, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := s.Partition(Namespace)
	return r, p.(*memory.Partition), clk
}

func TestRecordAppends(t *testing.T) {
	r, part, _ := newTestRecorder(t)
	ctx := context.Background()

	call := models.APICall{Endpoint: "analyzeProductImage", Status: models.StatusSuccess, Cost: 0.003}
	a := r.TrackAPICall(ctx, call, 1200*time.Millisecond)
	b := r.TrackAPICall(ctx, call, 1200*time.Millisecond)

	if a.ID == b.ID {
		t.Error("each record should get a fresh id")
	}
	if n, _ := part.Len(ctx); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestTrackAPICallKind(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	ctx := context.Background()

	hit := r.TrackAPICall(ctx, models.APICall{Endpoint: "e", CacheHit: true, Status: models.StatusSuccess}, 0)
	miss := r.TrackAPICall(ctx, models.APICall{Endpoint: "e", Status: models.StatusError, ErrorMessage: "boom"}, 0)

	if hit.Kind != models.KindCacheHit || !hit.Success {
		t.Errorf("hit recorded as %s success=%v", hit.Kind, hit.Success)
	}
	if miss.Kind != models.KindCacheMiss || miss.Success {
		t.Errorf("failed miss recorded as %s success=%v", miss.Kind, miss.Success)
	}
}

func TestTrackImageOptimizationDerivesRatio(t *testing.T) {
	r, _, _ := newTestRecorder(t)
	m := r.TrackImageOptimization(context.Background(), models.ImageOptimization{
		OriginalSize: 1000, OptimizedSize: 250, Format: "webp", ProcessingTimeMs: 40,
	})
	opt := m.Payload.(models.ImageOptimization)
	if opt.CompressionRatio != 0.25 {
		t.Errorf("expected ratio 0.25, got %v", opt.CompressionRatio)
	}
	if m.Duration != 40*time.Millisecond {
		t.Errorf("expected 40ms duration, got %v", m.Duration)
	}
}

func TestRecordWriteFailureSwallowed(t *testing.T) {
	r, part, _ := newTestRecorder(t)
	ctx := context.Background()
	part.FailWrites(errors.New("quota exceeded"))

	m := r.TrackVideoGeneration(ctx, models.VideoGeneration{RequestKey: "k"}, time.Second, true)
	if m.ID == "" {
		t.Error("record should still be returned to the caller")
	}
	if n, _ := part.Len(ctx); n != 0 {
		t.Errorf("expected nothing stored, got %d", n)
	}
}

func TestRecordRejectsMismatchedPayload(t *testing.T) {
	r, part, _ := newTestRecorder(t)
	ctx := context.Background()

	r.Record(ctx, models.KindVideoGeneration, models.UserAction{Action: "x"}, 0, true)
	if n, _ := part.Len(ctx); n != 0 {
		t.Errorf("mismatched payload should not be stored, got %d", n)
	}
}

func TestListWindowAndOrder(t *testing.T) {
	r, _, clk := newTestRecorder(t)
	ctx := context.Background()
	base := clk.now

	clk.now = base.Add(2 * time.Hour)
	r.TrackUserAction(ctx, "second", nil)
	clk.now = base
	r.TrackUserAction(ctx, "first", nil)
	clk.now = base.Add(-time.Hour)
	r.TrackUserAction(ctx, "before", nil)

	got, err := r.List(ctx, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records in window, got %d", len(got))
	}
	first := got[0].Payload.(models.UserAction).Action
	second := got[1].Payload.(models.UserAction).Action
	if first != "first" || second != "second" {
		t.Errorf("unexpected order: %s, %s", first, second)
	}
}

func TestListSkipsCorruptRecords(t *testing.T) {
	r, part, clk := newTestRecorder(t)
	ctx := context.Background()

	r.TrackUserAction(ctx, "ok", nil)
	_ = part.Set(ctx, "junk", []byte("not a metric"))

	got, err := r.List(ctx, clk.now.Add(-time.Hour), clk.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 record, got %d", len(got))
	}
}

func TestSweepOldMetrics(t *testing.T) {
	r, part, clk := newTestRecorder(t)
	ctx := context.Background()
	now := clk.now

	clk.now = now.Add(-31 * 24 * time.Hour)
	r.TrackUserAction(ctx, "old", nil)
	clk.now = now.Add(-10 * 24 * time.Hour)
	r.TrackUserAction(ctx, "recent", nil)
	clk.now = now

	removed, err := r.SweepOldMetrics(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if removed < 1 {
		t.Errorf("expected at least 1 removed, got %d", removed)
	}

	left, _ := r.List(ctx, time.UnixMilli(0), now)
	if len(left) != 1 || left[0].Payload.(models.UserAction).Action != "recent" {
		t.Errorf("expected only the recent record to survive, got %+v", left)
	}
	if n, _ := part.Len(ctx); n != 1 {
		t.Errorf("expected 1 stored record, got %d", n)
	}
}

func TestRecorderOnSQLite(t *testing.T) {
	s, err := sqlite.New(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	r, err := NewRecorder(s, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	r.TrackVideoGeneration(ctx, models.VideoGeneration{RequestKey: "k", Model: "veo"}, 90*time.Second, true)

	got, err := r.List(ctx, time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	v := got[0].Payload.(models.VideoGeneration)
	if v.Model != "veo" || got[0].Duration != 90*time.Second {
		t.Errorf("unexpected record %+v", got[0])
	}
}
