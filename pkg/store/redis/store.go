// Package redis keeps each partition in one Redis hash so several processes
// can share a cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/pario-ai/adcache/pkg/store"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every hash name.
	Prefix string
}

// Store wraps a go-redis client.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "adcache"
	}
	return &Store{client: client, prefix: prefix}
}

// Partition returns the partition for namespace.
func (s *Store) Partition(namespace string) (store.Partition, error) {
	return &partition{client: s.client, ns: namespace, hash: s.prefix + ":" + namespace}, nil
}

// Close closes the client.
func (s *Store) Close() error {
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

type partition struct {
	client *redis.Client
	ns     string
	hash   string
}

func (p *partition) Namespace() string { return p.ns }

func wrap(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return store.ErrClosed
	}
	return err
}

func (p *partition) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := p.client.HGet(ctx, p.hash, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store get %s/%s: %w", p.ns, key, wrap(err))
	}
	return value, true, nil
}

func (p *partition) Set(ctx context.Context, key string, value []byte) error {
	if err := p.client.HSet(ctx, p.hash, key, value).Err(); err != nil {
		return fmt.Errorf("store set %s/%s: %w", p.ns, key, wrap(err))
	}
	return nil
}

func (p *partition) Remove(ctx context.Context, key string) error {
	if err := p.client.HDel(ctx, p.hash, key).Err(); err != nil {
		return fmt.Errorf("store remove %s/%s: %w", p.ns, key, wrap(err))
	}
	return nil
}

func (p *partition) Keys(ctx context.Context) ([]string, error) {
	keys, err := p.client.HKeys(ctx, p.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("store keys %s: %w", p.ns, wrap(err))
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *partition) ForEach(ctx context.Context, fn func(key string, value []byte) error) error {
	all, err := p.client.HGetAll(ctx, p.hash).Result()
	if err != nil {
		return fmt.Errorf("store iterate %s: %w", p.ns, wrap(err))
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, []byte(all[k])); err != nil {
			return err
		}
	}
	return nil
}

func (p *partition) Clear(ctx context.Context) error {
	if err := p.client.Del(ctx, p.hash).Err(); err != nil {
		return fmt.Errorf("store clear %s: %w", p.ns, wrap(err))
	}
	return nil
}

func (p *partition) Len(ctx context.Context) (int, error) {
	n, err := p.client.HLen(ctx, p.hash).Result()
	if err != nil {
		return 0, fmt.Errorf("store len %s: %w", p.ns, wrap(err))
	}
	return int(n), nil
}
