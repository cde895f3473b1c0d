// Package cache implements the result caches for expensive AI calls: image
// analysis, generated videos and generic generation results.
//
// The cache is an optimisation. Store failures never reach callers: reads
// that fail are misses and writes that fail are logged and dropped.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/codec"
	"github.com/pario-ai/adcache/pkg/models"
	"github.com/pario-ai/adcache/pkg/store"
	"github.com/pario-ai/adcache/pkg/telemetry"
)

// DefaultTTL applies to every partition unless configured otherwise.
const DefaultTTL = 24 * time.Hour

// ErrUnknownPartition is returned for partition names outside models.Partitions.
var ErrUnknownPartition = errors.New("unknown cache partition")

// TTLs sets the default lifetime per partition. Zero fields fall back to Default,
// and a zero Default falls back to DefaultTTL.
type TTLs struct {
	Default       time.Duration
	ImageAnalysis time.Duration
	Video         time.Duration
	Generation    time.Duration
}

func (t TTLs) forPartition(p models.Partition) time.Duration {
	def := t.Default
	if def == 0 {
		def = DefaultTTL
	}
	var d time.Duration
	switch p {
	case models.PartitionImageAnalysis:
		d = t.ImageAnalysis
	case models.PartitionVideo:
		d = t.Video
	case models.PartitionGeneration:
		d = t.Generation
	}
	if d == 0 {
		return def
	}
	return d
}

// Option adjusts a single Get or Set call.
type Option func(*options)

type options struct {
	forceRefresh bool
	ttl          time.Duration
	ttlSet       bool
}

// ForceRefresh makes a getter report a miss without reading the store.
func ForceRefresh() Option {
	return func(o *options) { o.forceRefresh = true }
}

// WithTTL overrides the partition TTL for one write.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
		o.ttlSet = true
	}
}

func collect(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ResultCache groups the three result-cache partitions over one store.
type ResultCache struct {
	parts map[models.Partition]*partition
}

// New opens every partition on s.
func New(s store.Store, c *codec.Codec, ttls TTLs, log zerolog.Logger) (*ResultCache, error) {
	rc := &ResultCache{parts: make(map[models.Partition]*partition, len(models.Partitions))}
	for _, name := range models.Partitions {
		sp, err := s.Partition(name.Namespace())
		if err != nil {
			return nil, fmt.Errorf("open cache partition %s: %w", name, err)
		}
		rc.parts[name] = &partition{
			name:  name,
			store: sp,
			codec: c,
			ttl:   ttls.forPartition(name),
			log:   log.With().Str("partition", string(name)).Logger(),
		}
	}
	return rc, nil
}

// Of returns a typed view of the named partition.
func Of[T any](rc *ResultCache, name models.Partition) (*Typed[T], error) {
	p, ok := rc.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPartition, name)
	}
	return &Typed[T]{p: p}, nil
}

func mustOf[T any](rc *ResultCache, name models.Partition) *Typed[T] {
	t, err := Of[T](rc, name)
	if err != nil {
		panic(err)
	}
	return t
}

// GetCachedImageAnalysis looks up the analysis for an image content hash.
func (rc *ResultCache) GetCachedImageAnalysis(ctx context.Context, contentHash string, opts ...Option) (models.AnalysisResult, bool) {
	return mustOf[models.AnalysisResult](rc, models.PartitionImageAnalysis).Get(ctx, contentHash, opts...)
}

// CacheImageAnalysis stores the analysis for an image content hash.
func (rc *ResultCache) CacheImageAnalysis(ctx context.Context, contentHash string, result models.AnalysisResult, opts ...Option) {
	mustOf[models.AnalysisResult](rc, models.PartitionImageAnalysis).Set(ctx, contentHash, result, opts...)
}

// GetCachedVideo looks up a generated video URL by request key.
func (rc *ResultCache) GetCachedVideo(ctx context.Context, requestKey string, opts ...Option) (string, bool) {
	return mustOf[string](rc, models.PartitionVideo).Get(ctx, requestKey, opts...)
}

// CacheVideo stores a generated video URL under a request key.
func (rc *ResultCache) CacheVideo(ctx context.Context, requestKey, url string, opts ...Option) {
	mustOf[string](rc, models.PartitionVideo).Set(ctx, requestKey, url, opts...)
}

// GetCachedGenerationResult looks up a generic generation result.
func GetCachedGenerationResult[T any](ctx context.Context, rc *ResultCache, requestKey string, opts ...Option) (T, bool) {
	return mustOf[T](rc, models.PartitionGeneration).Get(ctx, requestKey, opts...)
}

// CacheGenerationResult stores a generic generation result.
func CacheGenerationResult[T any](ctx context.Context, rc *ResultCache, requestKey string, result T, opts ...Option) {
	mustOf[T](rc, models.PartitionGeneration).Set(ctx, requestKey, result, opts...)
}

// SweepExpired removes expired and malformed entries from every partition.
// It keeps going after a partition fails and returns the total removed along
// with the first error.
func (rc *ResultCache) SweepExpired(ctx context.Context) (int, error) {
	total := 0
	var firstErr error
	for _, name := range models.Partitions {
		n, err := rc.parts[name].sweep(ctx)
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// Clear removes entries from every partition; with expiredOnly it is SweepExpired.
func (rc *ResultCache) Clear(ctx context.Context, expiredOnly bool) (int, error) {
	if expiredOnly {
		return rc.SweepExpired(ctx)
	}
	total := 0
	for _, name := range models.Partitions {
		p := rc.parts[name]
		n, err := p.store.Len(ctx)
		if err != nil {
			return total, fmt.Errorf("cache clear %s: %w", name, err)
		}
		if err := p.store.Clear(ctx); err != nil {
			return total, fmt.Errorf("cache clear %s: %w", name, err)
		}
		total += n
	}
	return total, nil
}

// Sizes reports the entry count of every partition, live or not.
func (rc *ResultCache) Sizes(ctx context.Context) ([]models.PartitionSize, error) {
	sizes := make([]models.PartitionSize, 0, len(models.Partitions))
	for _, name := range models.Partitions {
		n, err := rc.parts[name].store.Len(ctx)
		if err != nil {
			return nil, fmt.Errorf("cache size %s: %w", name, err)
		}
		sizes = append(sizes, models.PartitionSize{Partition: name, Entries: n})
	}
	return sizes, nil
}

// Typed is a view of one partition holding payloads of type T.
type Typed[T any] struct {
	p *partition
}

// Key returns the physical store key for a request key.
func (t *Typed[T]) Key(requestKey string) string {
	return t.p.key(requestKey)
}

// Get returns the live payload for requestKey. Expired or undecodable entries
// are deleted and reported as a miss.
func (t *Typed[T]) Get(ctx context.Context, requestKey string, opts ...Option) (T, bool) {
	var zero T
	entry, ok := t.p.lookup(ctx, requestKey, collect(opts))
	if !ok {
		return zero, false
	}
	var v T
	if err := codec.Unwrap(entry, &v); err != nil {
		t.p.discard(ctx, t.p.key(requestKey), err)
		return zero, false
	}
	telemetry.RecordLookup(string(t.p.name), telemetry.OutcomeHit)
	return v, true
}

// Set stores v under requestKey, replacing any existing entry.
func (t *Typed[T]) Set(ctx context.Context, requestKey string, v T, opts ...Option) {
	_ = t.p.put(ctx, requestKey, v, collect(opts))
}

// Put is Set that also returns the write error.
func (t *Typed[T]) Put(ctx context.Context, requestKey string, v T, opts ...Option) error {
	return t.p.put(ctx, requestKey, v, collect(opts))
}

// Remove deletes the entry for requestKey.
func (t *Typed[T]) Remove(ctx context.Context, requestKey string) error {
	return t.p.store.Remove(ctx, t.p.key(requestKey))
}

type partition struct {
	name  models.Partition
	store store.Partition
	codec *codec.Codec
	ttl   time.Duration
	log   zerolog.Logger
}

func (p *partition) key(requestKey string) string {
	return codec.ComputeKey(string(p.name), requestKey)
}

// lookup returns the live entry for requestKey and records every non-hit outcome.
func (p *partition) lookup(ctx context.Context, requestKey string, o options) (models.CacheEntry, bool) {
	if o.forceRefresh {
		telemetry.RecordLookup(string(p.name), telemetry.OutcomeBypass)
		return models.CacheEntry{}, false
	}

	key := p.key(requestKey)
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		telemetry.RecordLookup(string(p.name), telemetry.OutcomeError)
		return models.CacheEntry{}, false
	}
	if !ok {
		telemetry.RecordLookup(string(p.name), telemetry.OutcomeMiss)
		return models.CacheEntry{}, false
	}

	entry, err := codec.Decode(raw)
	if err != nil {
		p.discard(ctx, key, err)
		return models.CacheEntry{}, false
	}
	if !p.codec.IsLive(entry) {
		if err := p.store.Remove(ctx, key); err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("failed to delete expired cache entry")
		}
		telemetry.RecordLookup(string(p.name), telemetry.OutcomeExpired)
		return models.CacheEntry{}, false
	}
	return entry, true
}

// discard drops an entry that could not be decoded.
func (p *partition) discard(ctx context.Context, key string, cause error) {
	p.log.Warn().Err(cause).Str("key", key).Msg("discarding malformed cache entry")
	if err := p.store.Remove(ctx, key); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("failed to delete malformed cache entry")
	}
	telemetry.RecordLookup(string(p.name), telemetry.OutcomeError)
}

func (p *partition) put(ctx context.Context, requestKey string, v any, o options) error {
	ttl := p.ttl
	if o.ttlSet {
		ttl = o.ttl
	}
	key := p.key(requestKey)

	err := p.write(ctx, key, v, ttl)
	telemetry.RecordCacheWrite(string(p.name), err)
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return err
}

func (p *partition) write(ctx context.Context, key string, v any, ttl time.Duration) error {
	entry, err := p.codec.Wrap(key, v, ttl)
	if err != nil {
		return err
	}
	raw, err := codec.Encode(entry)
	if err != nil {
		return err
	}
	return p.store.Set(ctx, key, raw)
}

func (p *partition) sweep(ctx context.Context) (int, error) {
	var doomed []string
	err := p.store.ForEach(ctx, func(key string, raw []byte) error {
		entry, err := codec.Decode(raw)
		if err != nil || !p.codec.IsLive(entry) {
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", p.name, err)
	}

	removed := 0
	for _, key := range doomed {
		if err := p.store.Remove(ctx, key); err != nil {
			return removed, fmt.Errorf("sweep %s: %w", p.name, err)
		}
		removed++
	}
	return removed, nil
}

// Raw returns an undecoded view of the named partition, used to move
// payloads over HTTP.
func (rc *ResultCache) Raw(name models.Partition) (*Typed[json.RawMessage], error) {
	return Of[json.RawMessage](rc, name)
}
