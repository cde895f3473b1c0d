// Package badger stores partitions in an embedded BadgerDB, one key prefix
// per namespace.
package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/pario-ai/adcache/pkg/store"
)

const sep = "\x00"

// Store wraps a BadgerDB handle.
type Store struct {
	db *badger.DB
}

// New opens (or creates) a Badger database in dir.
func New(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// NewInMemory opens a Badger database that never touches disk.
func NewInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// Partition returns the partition for namespace.
func (s *Store) Partition(namespace string) (store.Partition, error) {
	if s.db.IsClosed() {
		return nil, store.ErrClosed
	}
	return &partition{db: s.db, ns: namespace, prefix: []byte(namespace + sep)}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

type partition struct {
	db     *badger.DB
	ns     string
	prefix []byte
}

func (p *partition) Namespace() string { return p.ns }

func (p *partition) physical(key string) []byte {
	out := make([]byte, 0, len(p.prefix)+len(key))
	out = append(out, p.prefix...)
	return append(out, key...)
}

func (p *partition) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(p.physical(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store get %s/%s: %w", p.ns, key, err)
	}
	return value, true, nil
}

func (p *partition) Set(_ context.Context, key string, value []byte) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(p.physical(key), value)
	})
	if err != nil {
		return fmt.Errorf("store set %s/%s: %w", p.ns, key, err)
	}
	return nil
}

func (p *partition) Remove(_ context.Context, key string) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(p.physical(key))
	})
	if err != nil {
		return fmt.Errorf("store remove %s/%s: %w", p.ns, key, err)
	}
	return nil
}

func (p *partition) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := p.scan(ctx, false, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// ForEach collects entries inside a read transaction, then visits them so fn
// can write back to the store.
func (p *partition) ForEach(ctx context.Context, fn func(key string, value []byte) error) error {
	type kv struct {
		key   string
		value []byte
	}
	var entries []kv
	err := p.scan(ctx, true, func(key string, value []byte) error {
		entries = append(entries, kv{key, value})
		return nil
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (p *partition) scan(ctx context.Context, values bool, fn func(key string, value []byte) error) error {
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = values
		opts.Prefix = p.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key()[len(p.prefix):])
			var value []byte
			if values {
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				value = v
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store iterate %s: %w", p.ns, err)
	}
	return nil
}

func (p *partition) Clear(_ context.Context) error {
	if err := p.db.DropPrefix(p.prefix); err != nil {
		return fmt.Errorf("store clear %s: %w", p.ns, err)
	}
	return nil
}

func (p *partition) Len(ctx context.Context) (int, error) {
	n := 0
	err := p.scan(ctx, false, func(string, []byte) error {
		n++
		return nil
	})
	return n, err
}
