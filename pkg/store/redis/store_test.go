package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/pario-ai/adcache/pkg/store"
	"github.com/pario-ai/adcache/pkg/store/storetest"
)

// Set ADCACHE_TEST_REDIS=host:port to run against a real server.
func TestContract(t *testing.T) {
	addr := os.Getenv("ADCACHE_TEST_REDIS")
	if addr == "" {
		t.Skip("ADCACHE_TEST_REDIS not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		prefix := fmt.Sprintf("adcache-test-%d", time.Now().UnixNano())
		s, err := New(context.Background(), Options{Addr: addr, Prefix: prefix})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			for _, ns := range []string{"ns", "alpha", "beta"} {
				p, _ := s.Partition(ns)
				_ = p.Clear(context.Background())
			}
			_ = s.Close()
		})
		return s
	})
}

func TestNewUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := New(ctx, Options{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHashName(t *testing.T) {
	s := NewWithClient(nil, "")
	p, _ := s.Partition("cache:video")
	if got := p.(*partition).hash; got != "adcache:cache:video" {
		t.Errorf("unexpected hash name %q", got)
	}
}
