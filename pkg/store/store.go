// Package store defines the namespaced key/value contract every cache and
// metric component persists through.
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("store closed")

// Store hands out independent named partitions over one physical store.
type Store interface {
	// Partition returns the partition for namespace, creating it if needed.
	Partition(namespace string) (Partition, error)
	// Close releases the underlying store.
	Close() error
}

// Partition is one namespaced key/value collection. Implementations must be
// safe for concurrent use; they do not coordinate writers across processes,
// so concurrent writes to one key are last-write-wins.
type Partition interface {
	Namespace() string
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys returns every key in the partition.
	Keys(ctx context.Context) ([]string, error)
	// ForEach calls fn for every entry until fn returns an error.
	ForEach(ctx context.Context, fn func(key string, value []byte) error) error
	// Clear removes every entry in the partition.
	Clear(ctx context.Context) error
	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)
}
