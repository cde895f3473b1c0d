package codec

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestComputeKeyDeterministic(t *testing.T) {
	k1 := ComputeKey("video", "img-1", "a red shoe on a beach")
	k2 := ComputeKey("video", "img-1", "a red shoe on a beach")
	if k1 != k2 {
		t.Error("same input should produce same key")
	}
	if !strings.HasPrefix(k1, "video_") {
		t.Errorf("expected kind prefix, got %s", k1)
	}
	// sha256 hex after the prefix
	if len(k1) != len("video_")+64 {
		t.Errorf("unexpected key length %d", len(k1))
	}
}

func TestComputeKeyDistinguishes(t *testing.T) {
	base := ComputeKey("video", "img-1", "prompt")
	cases := map[string]string{
		"other kind":     ComputeKey("generation", "img-1", "prompt"),
		"other image":    ComputeKey("video", "img-2", "prompt"),
		"other prompt":   ComputeKey("video", "img-1", "prompt!"),
		"swapped order":  ComputeKey("video", "prompt", "img-1"),
		"shifted split":  ComputeKey("video", "img-1p", "rompt"),
		"fewer inputs":   ComputeKey("video", "img-1prompt"),
		"trailing empty": ComputeKey("video", "img-1", "prompt", ""),
	}
	for name, k := range cases {
		if k == base {
			t.Errorf("%s: expected different key", name)
		}
	}
}

func TestComputeKeyEmptyInput(t *testing.T) {
	k1 := ComputeKey("analysis")
	k2 := ComputeKey("analysis", "")
	if k1 == "" || k2 == "" {
		t.Fatal("empty input should still produce a key")
	}
	if k1 != ComputeKey("analysis") {
		t.Error("degenerate key should be stable")
	}
	if HashContent(nil) != HashContent([]byte{}) {
		t.Error("nil and empty content should hash the same")
	}
}

func TestRequestKey(t *testing.T) {
	if RequestKey("a", "b") != RequestKey("a", "b") {
		t.Error("request key should be deterministic")
	}
	if RequestKey("a", "b") == RequestKey("a", "c") {
		t.Error("changing any parameter should change the key")
	}
}

func TestHashDescriptor(t *testing.T) {
	type req struct {
		ImageID string            `json:"image_id"`
		Prompt  string            `json:"prompt"`
		Extra   map[string]string `json:"extra"`
	}
	a, err := HashDescriptor(req{"i", "p", map[string]string{"x": "1", "y": "2"}})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := HashDescriptor(req{"i", "p", map[string]string{"y": "2", "x": "1"}})
	if a != b {
		t.Error("equal descriptors should hash equally")
	}
	c, _ := HashDescriptor(req{"i", "q", nil})
	if a == c {
		t.Error("different descriptors should hash differently")
	}
}

func TestWrapAndIsLive(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000)
	now := created
	c := New(func() time.Time { return now })

	e, err := c.Wrap("k", map[string]string{"title": "Shoe"}, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if e.ExpiresAt != e.CreatedAt+24*60*60*1000 {
		t.Errorf("unexpected expiry %d for created %d", e.ExpiresAt, e.CreatedAt)
	}

	now = created.Add(24*time.Hour - time.Millisecond)
	if !c.IsLive(e) {
		t.Error("entry should be live 1ms before expiry")
	}
	now = created.Add(24 * time.Hour)
	if !c.IsLive(e) {
		t.Error("entry should be live exactly at expiry")
	}
	now = created.Add(24*time.Hour + time.Millisecond)
	if c.IsLive(e) {
		t.Error("entry should be expired 1ms after expiry")
	}
}

func TestNonPositiveTTLExpired(t *testing.T) {
	c := New(fixedClock(time.UnixMilli(1_700_000_000_000)))
	for _, ttl := range []time.Duration{0, -time.Second} {
		e, err := c.Wrap("k", "v", ttl)
		if err != nil {
			t.Fatal(err)
		}
		if c.IsLive(e) {
			t.Errorf("ttl %v should produce an expired entry", ttl)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	c := New(nil)
	e, _ := c.Wrap("k", []string{"a"}, time.Hour)
	b, err := Encode(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	if err := Unwrap(got, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != "a" || got.Key != "k" {
		t.Errorf("unexpected round trip: %+v %v", got, out)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"key":"k"}`, `{"created_at":1}`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformedEntry) {
			t.Errorf("%q: expected ErrMalformedEntry, got %v", raw, err)
		}
	}
}
