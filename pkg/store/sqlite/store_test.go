package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pario-ai/adcache/pkg/store"
	"github.com/pario-ai/adcache/pkg/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store_test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s1, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := s1.Partition("ns")
	if err := p.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	_ = s1.Close()

	s2, err := New(dbPath)
	if err != nil {
		t.Fatal("second New() failed:", err)
	}
	defer s2.Close()
	p, _ = s2.Partition("ns")
	v, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Errorf("expected persisted value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestClosed(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.Partition("ns")
	_ = s.Close()

	if err := p.Set(context.Background(), "k", []byte("v")); !errors.Is(err, store.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := s.Partition("other"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
