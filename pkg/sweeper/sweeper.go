// Package sweeper runs retention sweeps over the result cache and the metric
// records, once at start and then on cron schedules.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/telemetry"
)

// Default schedules.
const (
	DefaultCacheSchedule   = "@every 1h"
	DefaultMetricsSchedule = "@every 24h"
)

// CacheSweeper removes expired cache entries.
type CacheSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// MetricSweeper removes metric records past retention.
type MetricSweeper interface {
	SweepOldMetrics(ctx context.Context, retentionDays int) (int, error)
}

// Options configures a Sweeper. Empty schedules use the defaults.
type Options struct {
	RetentionDays   int
	CacheSchedule   string
	MetricsSchedule string
	RunOnStart      bool
}

// Result reports what one full sweep removed.
type Result struct {
	Cache   int `json:"cache"`
	Metrics int `json:"metrics"`
}

// ParseSchedule checks a cron spec or descriptor such as "@every 1h".
func ParseSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return nil
}

// Sweeper owns the background maintenance lifecycle.
type Sweeper struct {
	cache   CacheSweeper
	metrics MetricSweeper
	opts    Options
	log     zerolog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New returns a stopped Sweeper.
func New(c CacheSweeper, m MetricSweeper, opts Options, log zerolog.Logger) *Sweeper {
	if opts.CacheSchedule == "" {
		opts.CacheSchedule = DefaultCacheSchedule
	}
	if opts.MetricsSchedule == "" {
		opts.MetricsSchedule = DefaultMetricsSchedule
	}
	return &Sweeper{cache: c, metrics: m, opts: opts, log: log}
}

// SweepExpiredCache removes expired cache entries and returns the count.
func (s *Sweeper) SweepExpiredCache(ctx context.Context) (int, error) {
	n, err := s.cache.SweepExpired(ctx)
	telemetry.RecordSweep("cache", n)
	if err != nil {
		s.log.Warn().Err(err).Int("removed", n).Msg("cache sweep failed")
		return n, err
	}
	s.log.Info().Int("removed", n).Msg("cache sweep complete")
	return n, nil
}

// SweepOldMetrics removes metric records older than retentionDays; zero or
// less uses the configured retention.
func (s *Sweeper) SweepOldMetrics(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = s.opts.RetentionDays
	}
	n, err := s.metrics.SweepOldMetrics(ctx, retentionDays)
	telemetry.RecordSweep("metrics", n)
	if err != nil {
		s.log.Warn().Err(err).Int("removed", n).Msg("metrics sweep failed")
		return n, err
	}
	s.log.Info().Int("removed", n).Int("retention_days", retentionDays).Msg("metrics sweep complete")
	return n, nil
}

// Sweep runs both sweeps. The second runs even if the first fails.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	var errs []error
	n, err := s.SweepExpiredCache(ctx)
	res.Cache = n
	if err != nil {
		errs = append(errs, err)
	}
	n, err = s.SweepOldMetrics(ctx, 0)
	res.Metrics = n
	if err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// Start runs the startup sweep (if enabled) and schedules the recurring
// ones. Calling Start on a running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cl := cron.PrintfLogger(&s.log)
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(s.opts.CacheSchedule, func() { _, _ = s.SweepExpiredCache(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	if _, err := c.AddFunc(s.opts.MetricsSchedule, func() { _, _ = s.SweepOldMetrics(runCtx, 0) }); err != nil {
		cancel()
		return fmt.Errorf("schedule metrics sweep: %w", err)
	}

	if s.opts.RunOnStart {
		_, _ = s.Sweep(runCtx)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.log.Info().
		Str("cache_schedule", s.opts.CacheSchedule).
		Str("metrics_schedule", s.opts.MetricsSchedule).
		Msg("background maintenance started")
	return nil
}

// Stop cancels scheduled sweeps and waits for a running one to return.
// It is safe to call more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	cancel()
	<-done.Done()
	s.log.Info().Msg("background maintenance stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}
