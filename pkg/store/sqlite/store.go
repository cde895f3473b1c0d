package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/adcache/pkg/store"
)

// Store keeps every partition in one SQLite table keyed by namespace and key.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv_entries (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// New opens (or creates) the SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// One connection serialises writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createKVTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &Store{db: db}, nil
}

// Partition returns the partition for namespace. Partitions are views over
// the shared table, so creating one is free.
func (s *Store) Partition(namespace string) (store.Partition, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	return &partition{s: s, ns: namespace}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

type partition struct {
	s  *Store
	ns string
}

func (p *partition) Namespace() string { return p.ns }

func (p *partition) check() error {
	if p.s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

func (p *partition) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := p.check(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := p.s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`,
		p.ns, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store get %s/%s: %w", p.ns, key, err)
	}
	return value, true, nil
}

func (p *partition) Set(ctx context.Context, key string, value []byte) error {
	if err := p.check(); err != nil {
		return err
	}
	_, err := p.s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv_entries (namespace, key, value) VALUES (?, ?, ?)`,
		p.ns, key, value,
	)
	if err != nil {
		return fmt.Errorf("store set %s/%s: %w", p.ns, key, err)
	}
	return nil
}

func (p *partition) Remove(ctx context.Context, key string) error {
	if err := p.check(); err != nil {
		return err
	}
	_, err := p.s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE namespace = ? AND key = ?`, p.ns, key)
	if err != nil {
		return fmt.Errorf("store remove %s/%s: %w", p.ns, key, err)
	}
	return nil
}

func (p *partition) Keys(ctx context.Context) ([]string, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	rows, err := p.s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE namespace = ? ORDER BY key`, p.ns)
	if err != nil {
		return nil, fmt.Errorf("store keys %s: %w", p.ns, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ForEach buffers the partition before visiting so fn may write to the
// store without deadlocking on the open cursor.
func (p *partition) ForEach(ctx context.Context, fn func(key string, value []byte) error) error {
	if err := p.check(); err != nil {
		return err
	}
	rows, err := p.s.db.QueryContext(ctx,
		`SELECT key, value FROM kv_entries WHERE namespace = ? ORDER BY key`, p.ns)
	if err != nil {
		return fmt.Errorf("store iterate %s: %w", p.ns, err)
	}

	type kv struct {
		key   string
		value []byte
	}
	var entries []kv
	for rows.Next() {
		var e kv
		if err := rows.Scan(&e.key, &e.value); err != nil {
			rows.Close()
			return fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("store iterate %s: %w", p.ns, err)
	}

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (p *partition) Clear(ctx context.Context) error {
	if err := p.check(); err != nil {
		return err
	}
	if _, err := p.s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ?`, p.ns); err != nil {
		return fmt.Errorf("store clear %s: %w", p.ns, err)
	}
	return nil
}

func (p *partition) Len(ctx context.Context) (int, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	var n int
	err := p.s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv_entries WHERE namespace = ?`, p.ns).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store len %s: %w", p.ns, err)
	}
	return n, nil
}
