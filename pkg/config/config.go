package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/adcache/pkg/logging"
	"github.com/pario-ai/adcache/pkg/sweeper"
)

// DefaultPath is read when no config file is given.
const DefaultPath = "adcache.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all adcache configuration.
type Config struct {
	Listen      string            `yaml:"listen"`
	Store       StoreConfig       `yaml:"store"`
	Cache       CacheConfig       `yaml:"cache"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Log         logging.Config    `yaml:"log"`
}

// StoreConfig selects the persistent store.
// Path is the SQLite file or the Badger directory.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig is used when Backend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig sets result cache lifetimes. Zero per-partition TTLs use TTL.
type CacheConfig struct {
	TTL              time.Duration `yaml:"ttl"`
	ImageAnalysisTTL time.Duration `yaml:"image_analysis_ttl"`
	VideoTTL         time.Duration `yaml:"video_ttl"`
	GenerationTTL    time.Duration `yaml:"generation_ttl"`
}

// MetricsConfig controls cost accounting and retention.
type MetricsConfig struct {
	UnitCost      float64 `yaml:"unit_cost"`
	RetentionDays int     `yaml:"retention_days"`
}

// MaintenanceConfig controls the background sweeper.
type MaintenanceConfig struct {
	Enabled         bool   `yaml:"enabled"`
	RunOnStart      bool   `yaml:"run_on_start"`
	CacheSchedule   string `yaml:"cache_schedule"`
	MetricsSchedule string `yaml:"metrics_schedule"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "adcache.db",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "adcache",
			},
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			UnitCost:      0.003,
			RetentionDays: 30,
		},
		Maintenance: MaintenanceConfig{
			Enabled:         true,
			RunOnStart:      true,
			CacheSchedule:   sweeper.DefaultCacheSchedule,
			MetricsSchedule: sweeper.DefaultMetricsSchedule,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file, expands environment variables and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is DefaultPath and
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == DefaultPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
	}
	return Load(path)
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for %s", ErrInvalid, c.Store.Backend)
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required", ErrInvalid)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}

	ttls := map[string]time.Duration{
		"cache.ttl":                c.Cache.TTL,
		"cache.image_analysis_ttl": c.Cache.ImageAnalysisTTL,
		"cache.video_ttl":          c.Cache.VideoTTL,
		"cache.generation_ttl":     c.Cache.GenerationTTL,
	}
	for name, d := range ttls {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
		}
	}

	if c.Metrics.UnitCost < 0 {
		return fmt.Errorf("%w: metrics.unit_cost must not be negative", ErrInvalid)
	}
	if c.Metrics.RetentionDays < 1 {
		return fmt.Errorf("%w: metrics.retention_days must be at least 1", ErrInvalid)
	}

	for _, spec := range []string{c.Maintenance.CacheSchedule, c.Maintenance.MetricsSchedule} {
		if spec == "" {
			continue
		}
		if err := sweeper.ParseSchedule(spec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}
