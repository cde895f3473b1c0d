// Package app builds the components from configuration and owns their
// lifecycle. An App replaces process-wide store handles: every command and
// server gets its cache and recorder from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/cache"
	"github.com/pario-ai/adcache/pkg/codec"
	"github.com/pario-ai/adcache/pkg/config"
	"github.com/pario-ai/adcache/pkg/logging"
	"github.com/pario-ai/adcache/pkg/metrics"
	"github.com/pario-ai/adcache/pkg/store"
	"github.com/pario-ai/adcache/pkg/store/badger"
	"github.com/pario-ai/adcache/pkg/store/memory"
	"github.com/pario-ai/adcache/pkg/store/redis"
	"github.com/pario-ai/adcache/pkg/store/sqlite"
	"github.com/pario-ai/adcache/pkg/sweeper"
)

// App is the application context.
type App struct {
	Config     *config.Config
	Log        zerolog.Logger
	Store      store.Store
	Cache      *cache.ResultCache
	Recorder   *metrics.Recorder
	Aggregator *metrics.Aggregator
	Sweeper    *sweeper.Sweeper
}

// Option adjusts construction, mainly for tests.
type Option func(*options)

type options struct {
	now   func() time.Time
	store store.Store
}

// WithClock replaces time.Now in every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStore uses s instead of opening the configured backend. The App takes
// ownership and closes it.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// New opens the configured store and builds every component. Background
// maintenance does not run until Start.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	s := o.store
	if s == nil {
		var err error
		s, err = OpenStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
	}

	rc, err := cache.New(s, codec.New(o.now), cache.TTLs{
		Default:       cfg.Cache.TTL,
		ImageAnalysis: cfg.Cache.ImageAnalysisTTL,
		Video:         cfg.Cache.VideoTTL,
		Generation:    cfg.Cache.GenerationTTL,
	}, logging.Component(log, "cache"))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	rec, err := metrics.NewRecorder(s, o.now, logging.Component(log, "metrics"))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	sw := sweeper.New(rc, rec, sweeper.Options{
		RetentionDays:   cfg.Metrics.RetentionDays,
		CacheSchedule:   cfg.Maintenance.CacheSchedule,
		MetricsSchedule: cfg.Maintenance.MetricsSchedule,
		RunOnStart:      cfg.Maintenance.RunOnStart,
	}, logging.Component(log, "sweeper"))

	log.Info().Str("backend", cfg.Store.Backend).Msg("store opened")

	return &App{
		Config:     cfg,
		Log:        log,
		Store:      s,
		Cache:      rc,
		Recorder:   rec,
		Aggregator: metrics.NewAggregator(rec, cfg.Metrics.UnitCost),
		Sweeper:    sw,
	}, nil
}

// OpenStore opens the backend named by cfg.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendBadger:
		s, err := badger.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		s, err := redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalid, cfg.Backend)
}

// Start begins background maintenance when enabled.
func (a *App) Start(ctx context.Context) error {
	if !a.Config.Maintenance.Enabled {
		return nil
	}
	return a.Sweeper.Start(ctx)
}

// Close stops maintenance and closes the store.
func (a *App) Close() error {
	a.Sweeper.Stop()
	if err := a.Store.Close(); err != nil && !errors.Is(err, store.ErrClosed) {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
