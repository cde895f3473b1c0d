// Package storetest runs the store.Partition contract against a backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pario-ai/adcache/pkg/store"
)

// Run exercises every Partition operation. open must return a fresh, empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("SetGetRemove", func(t *testing.T) {
		p := mustPartition(t, open(t), "ns")
		ctx := context.Background()

		if _, ok, err := p.Get(ctx, "a"); err != nil || ok {
			t.Fatalf("expected miss on empty partition, ok=%v err=%v", ok, err)
		}
		if err := p.Set(ctx, "a", []byte("1")); err != nil {
			t.Fatal(err)
		}
		v, ok, err := p.Get(ctx, "a")
		if err != nil || !ok {
			t.Fatalf("expected hit, ok=%v err=%v", ok, err)
		}
		if string(v) != "1" {
			t.Errorf("expected 1, got %s", v)
		}
		if err := p.Remove(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := p.Get(ctx, "a"); ok {
			t.Error("expected miss after remove")
		}
		if err := p.Remove(ctx, "a"); err != nil {
			t.Errorf("removing absent key should not fail: %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		p := mustPartition(t, open(t), "ns")
		ctx := context.Background()

		_ = p.Set(ctx, "k", []byte("first"))
		_ = p.Set(ctx, "k", []byte("second"))

		n, err := p.Len(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 entry, got %d", n)
		}
		v, _, _ := p.Get(ctx, "k")
		if string(v) != "second" {
			t.Errorf("expected second, got %s", v)
		}
	})

	t.Run("NamespacesIsolated", func(t *testing.T) {
		s := open(t)
		a := mustPartition(t, s, "alpha")
		b := mustPartition(t, s, "beta")
		ctx := context.Background()

		_ = a.Set(ctx, "k", []byte("a"))
		_ = b.Set(ctx, "k", []byte("b"))
		if err := a.Clear(ctx); err != nil {
			t.Fatal(err)
		}

		if n, _ := a.Len(ctx); n != 0 {
			t.Errorf("expected alpha empty after clear, got %d", n)
		}
		v, ok, _ := b.Get(ctx, "k")
		if !ok || string(v) != "b" {
			t.Errorf("beta should be untouched, got %q ok=%v", v, ok)
		}
	})

	t.Run("KeysAndForEach", func(t *testing.T) {
		p := mustPartition(t, open(t), "ns")
		ctx := context.Background()

		for i := range 3 {
			_ = p.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte('0' + i)})
		}

		keys, err := p.Keys(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 3 {
			t.Fatalf("expected 3 keys, got %v", keys)
		}

		seen := map[string]string{}
		err = p.ForEach(ctx, func(k string, v []byte) error {
			seen[k] = string(v)
			// Writes from inside the visitor must not deadlock.
			return p.Remove(ctx, k)
		})
		if err != nil {
			t.Fatal(err)
		}
		if seen["k2"] != "2" || len(seen) != 3 {
			t.Errorf("unexpected visit set: %v", seen)
		}
		if n, _ := p.Len(ctx); n != 0 {
			t.Errorf("expected visitor removals to apply, %d left", n)
		}
	})

	t.Run("ForEachStops", func(t *testing.T) {
		p := mustPartition(t, open(t), "ns")
		ctx := context.Background()
		_ = p.Set(ctx, "a", []byte("1"))
		_ = p.Set(ctx, "b", []byte("2"))

		stop := errors.New("stop")
		calls := 0
		err := p.ForEach(ctx, func(string, []byte) error {
			calls++
			return stop
		})
		if !errors.Is(err, stop) {
			t.Errorf("expected visitor error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		p := mustPartition(t, open(t), "ns")
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = p.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
				_ = p.Set(ctx, "shared", []byte{byte(i)})
			}()
		}
		wg.Wait()

		if n, _ := p.Len(ctx); n != 9 {
			t.Errorf("expected 9 entries, got %d", n)
		}
	})
}

func mustPartition(t *testing.T, s store.Store, ns string) store.Partition {
	t.Helper()
	p, err := s.Partition(ns)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
