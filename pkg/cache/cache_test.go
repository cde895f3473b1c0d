package cache

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/codec"
	"github.com/pario-ai/adcache/pkg/models"
	"github.com/pario-ai/adcache/pkg/store"
	"github.com/pario-ai/adcache/pkg/store/memory"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestCache(t *testing.T) (*ResultCache, *memory.Store, *clock) {
	t.Helper()
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	s := memory.New()
	rc, err := New(s, codec.New(clk.Now), TTLs{}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return rc, s, clk
}

func partitionOf(t *testing.T, s store.Store, p models.Partition) *memory.Partition {
	t.Helper()
	sp, err := s.Partition(p.Namespace())
	if err != nil {
		t.Fatal(err)
	}
	return sp.(*memory.Partition)
}

func TestImageAnalysisPutAndGet(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()
	hash := codec.HashContent([]byte("jpeg bytes"))

	if _, ok := rc.GetCachedImageAnalysis(ctx, hash); ok {
		t.Fatal("expected miss on empty cache")
	}

	rc.CacheImageAnalysis(ctx, hash, models.AnalysisResult{Title: "Shoe", SellingPoints: []string{"light"}})

	got, ok := rc.GetCachedImageAnalysis(ctx, hash)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Title != "Shoe" || len(got.SellingPoints) != 1 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestTTLBoundary(t *testing.T) {
	rc, s, clk := newTestCache(t)
	ctx := context.Background()
	created := clk.now
	const ttl = time.Hour

	rc.CacheVideo(ctx, "req", "https://cdn/video.mp4", WithTTL(ttl))

	clk.now = created.Add(ttl - time.Millisecond)
	if url, ok := rc.GetCachedVideo(ctx, "req"); !ok || url != "https://cdn/video.mp4" {
		t.Fatalf("expected hit before expiry, got %q ok=%v", url, ok)
	}

	clk.now = created.Add(ttl + time.Millisecond)
	if _, ok := rc.GetCachedVideo(ctx, "req"); ok {
		t.Fatal("expected miss after expiry")
	}

	keys, _ := partitionOf(t, s, models.PartitionVideo).Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("expired entry should be removed on read, found %v", keys)
	}
}

func TestForceRefreshBypasses(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.CacheVideo(ctx, "req", "url-1")

	if _, ok := rc.GetCachedVideo(ctx, "req", ForceRefresh()); ok {
		t.Error("force refresh should report a miss")
	}
	if url, ok := rc.GetCachedVideo(ctx, "req"); !ok || url != "url-1" {
		t.Errorf("plain read should still hit, got %q ok=%v", url, ok)
	}
}

func TestOverwriteKeepsOneEntry(t *testing.T) {
	rc, s, clk := newTestCache(t)
	ctx := context.Background()
	start := clk.now

	rc.CacheVideo(ctx, "req", "first", WithTTL(time.Minute))
	rc.CacheVideo(ctx, "req", "second", WithTTL(2*time.Hour))

	p := partitionOf(t, s, models.PartitionVideo)
	if n, _ := p.Len(ctx); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}

	clk.now = start.Add(time.Hour)
	url, ok := rc.GetCachedVideo(ctx, "req")
	if !ok || url != "second" {
		t.Errorf("second write should win with its own expiry, got %q ok=%v", url, ok)
	}
}

func TestOverwriteExpiredEntry(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.CacheVideo(ctx, "req", "stale", WithTTL(0))
	rc.CacheVideo(ctx, "req", "fresh")
	if url, ok := rc.GetCachedVideo(ctx, "req"); !ok || url != "fresh" {
		t.Errorf("expected fresh, got %q ok=%v", url, ok)
	}
}

func TestZeroTTLIsImmediateMiss(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.CacheVideo(ctx, "req", "url", WithTTL(0))
	if _, ok := rc.GetCachedVideo(ctx, "req"); ok {
		t.Error("zero ttl should force a miss")
	}
}

func TestPartitionsDoNotCollide(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.CacheVideo(ctx, "same", "video-url")
	CacheGenerationResult(ctx, rc, "same", "generated")

	video, _ := rc.GetCachedVideo(ctx, "same")
	gen, _ := GetCachedGenerationResult[string](ctx, rc, "same")
	if video != "video-url" || gen != "generated" {
		t.Errorf("partitions leaked: video=%q generation=%q", video, gen)
	}

	videos, _ := Of[string](rc, models.PartitionVideo)
	gens, _ := Of[string](rc, models.PartitionGeneration)
	if videos.Key("same") == gens.Key("same") {
		t.Error("physical keys should carry the partition tag")
	}
}

func TestGenerationResultTyped(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	type script struct {
		Headline string   `json:"headline"`
		Scenes   []string `json:"scenes"`
	}
	key := codec.RequestKey("img-1", "summer sale", "15s")
	CacheGenerationResult(ctx, rc, key, script{Headline: "Run", Scenes: []string{"a", "b"}})

	got, ok := GetCachedGenerationResult[script](ctx, rc, key)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Headline != "Run" || !slices.Equal(got.Scenes, []string{"a", "b"}) {
		t.Errorf("unexpected result %+v", got)
	}

	if _, ok := GetCachedGenerationResult[script](ctx, rc, codec.RequestKey("img-1", "summer sale", "30s")); ok {
		t.Error("changing one parameter should miss")
	}
}

func TestWriteFailureSwallowed(t *testing.T) {
	rc, s, _ := newTestCache(t)
	ctx := context.Background()
	p := partitionOf(t, s, models.PartitionVideo)
	p.FailWrites(errors.New("quota exceeded"))

	rc.CacheVideo(ctx, "req", "url") // must not panic or surface

	if _, ok := rc.GetCachedVideo(ctx, "req"); ok {
		t.Error("failed write should leave a miss")
	}

	videos, _ := Of[string](rc, models.PartitionVideo)
	if err := videos.Put(ctx, "req", "url"); err == nil {
		t.Error("Put should report the write error")
	}
}

func TestMalformedEntryDeleted(t *testing.T) {
	rc, s, _ := newTestCache(t)
	ctx := context.Background()
	videos, _ := Of[string](rc, models.PartitionVideo)
	p := partitionOf(t, s, models.PartitionVideo)

	_ = p.Set(ctx, videos.Key("req"), []byte("{corrupt"))
	if _, ok := rc.GetCachedVideo(ctx, "req"); ok {
		t.Fatal("corrupt entry should be a miss")
	}
	if _, ok, _ := p.Get(ctx, videos.Key("req")); ok {
		t.Error("corrupt entry should be deleted")
	}
}

func TestWrongPayloadTypeDeleted(t *testing.T) {
	rc, s, _ := newTestCache(t)
	ctx := context.Background()

	CacheGenerationResult(ctx, rc, "req", "a string")
	if _, ok := GetCachedGenerationResult[[]int](ctx, rc, "req"); ok {
		t.Fatal("undecodable payload should be a miss")
	}
	if n, _ := partitionOf(t, s, models.PartitionGeneration).Len(ctx); n != 0 {
		t.Errorf("undecodable entry should be deleted, %d left", n)
	}
}

func TestSweepExpired(t *testing.T) {
	rc, s, clk := newTestCache(t)
	ctx := context.Background()

	rc.CacheVideo(ctx, "short", "a", WithTTL(time.Minute))
	rc.CacheVideo(ctx, "long", "b", WithTTL(48*time.Hour))
	rc.CacheImageAnalysis(ctx, "hash", models.AnalysisResult{Title: "x"}, WithTTL(time.Minute))
	_ = partitionOf(t, s, models.PartitionGeneration).Set(ctx, "junk", []byte("nope"))

	clk.now = clk.now.Add(time.Hour)
	removed, err := rc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	if _, ok := rc.GetCachedVideo(ctx, "long"); !ok {
		t.Error("live entry should survive the sweep")
	}

	removed, _ = rc.SweepExpired(ctx)
	if removed != 0 {
		t.Errorf("second sweep should be a no-op, removed %d", removed)
	}
}

func TestSizesAndClear(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.CacheVideo(ctx, "a", "1")
	rc.CacheVideo(ctx, "b", "2")
	CacheGenerationResult(ctx, rc, "c", 3)

	sizes, err := rc.Sizes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[models.Partition]int{
		models.PartitionImageAnalysis: 0,
		models.PartitionVideo:         2,
		models.PartitionGeneration:    1,
	}
	for _, sz := range sizes {
		if want[sz.Partition] != sz.Entries {
			t.Errorf("%s: expected %d, got %d", sz.Partition, want[sz.Partition], sz.Entries)
		}
	}

	removed, err := rc.Clear(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("expected 3 cleared, got %d", removed)
	}
}

func TestUnknownPartition(t *testing.T) {
	rc, _, _ := newTestCache(t)
	if _, err := Of[string](rc, models.Partition("thumbnails")); !errors.Is(err, ErrUnknownPartition) {
		t.Errorf("expected ErrUnknownPartition, got %v", err)
	}
}

func TestTTLDefaults(t *testing.T) {
	ttls := TTLs{Video: time.Hour}
	if got := ttls.forPartition(models.PartitionVideo); got != time.Hour {
		t.Errorf("expected video override, got %v", got)
	}
	if got := ttls.forPartition(models.PartitionImageAnalysis); got != DefaultTTL {
		t.Errorf("expected default 24h, got %v", got)
	}
}
