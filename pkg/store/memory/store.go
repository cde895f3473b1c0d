// Package memory is an in-process store. Data does not survive the process;
// it backs tests and the "memory" backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pario-ai/adcache/pkg/store"
)

// Store holds partitions in maps.
type Store struct {
	mu         sync.Mutex
	partitions map[string]*Partition
	closed     bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{partitions: make(map[string]*Partition)}
}

// Partition returns the partition for namespace.
func (s *Store) Partition(namespace string) (store.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	p, ok := s.partitions[namespace]
	if !ok {
		p = &Partition{ns: namespace, entries: make(map[string][]byte)}
		s.partitions[namespace] = p
	}
	return p, nil
}

// Close marks the store closed. Partitions already handed out keep working.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Partition is a map-backed partition. FailWrites makes Set return the given
// error, which lets tests simulate an unavailable store.
type Partition struct {
	ns      string
	mu      sync.RWMutex
	entries map[string][]byte

	failMu     sync.Mutex
	failWrites error
}

// FailWrites makes subsequent Set calls fail with err; nil restores writes.
func (p *Partition) FailWrites(err error) {
	p.failMu.Lock()
	p.failWrites = err
	p.failMu.Unlock()
}

func (p *Partition) Namespace() string { return p.ns }

func (p *Partition) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (p *Partition) Set(_ context.Context, key string, value []byte) error {
	p.failMu.Lock()
	err := p.failWrites
	p.failMu.Unlock()
	if err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)
	p.mu.Lock()
	p.entries[key] = v
	p.mu.Unlock()
	return nil
}

func (p *Partition) Remove(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
	return nil
}

func (p *Partition) Keys(_ context.Context) ([]string, error) {
	p.mu.RLock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// ForEach visits a snapshot, so fn may modify the partition.
func (p *Partition) ForEach(ctx context.Context, fn func(key string, value []byte) error) error {
	keys, _ := p.Keys(ctx)
	for _, k := range keys {
		v, ok, _ := p.Get(ctx, k)
		if !ok {
			continue
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partition) Clear(_ context.Context) error {
	p.mu.Lock()
	p.entries = make(map[string][]byte)
	p.mu.Unlock()
	return nil
}

func (p *Partition) Len(_ context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries), nil
}
