// Package codec computes cache keys and wraps payloads in expiring entries.
package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/pario-ai/adcache/pkg/models"
)

// ErrMalformedEntry is returned when stored bytes are not a usable entry.
var ErrMalformedEntry = errors.New("malformed cache entry")

// ComputeKey hashes inputs in order under a kind prefix. Each input is length
// prefixed, so ("ab","c") and ("a","bc") hash differently. The result is
// "<prefix>_<sha256 hex>" and is stable across processes.
func ComputeKey(prefix string, inputs ...string) string {
	return prefix + "_" + hashInputs(prefix, inputs)
}

// RequestKey combines every parameter of a generative request into one
// request key. Changing any parameter changes the key.
func RequestKey(inputs ...string) string {
	return hashInputs("", inputs)
}

// HashContent returns the SHA-256 hex digest of raw content, typically the
// uploaded image bytes. Empty content yields the digest of the empty input.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashDescriptor hashes the JSON encoding of a structured request descriptor.
// Struct fields encode in declaration order and map keys sorted, so equal
// descriptors hash equally.
func HashDescriptor(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	return HashContent(data), nil
}

func hashInputs(prefix string, inputs []string) string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(prefix)))
	h.Write(n[:])
	h.Write([]byte(prefix))
	for _, in := range inputs {
		binary.BigEndian.PutUint64(n[:], uint64(len(in)))
		h.Write(n[:])
		h.Write([]byte(in))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Codec stamps entries with times from its clock.
type Codec struct {
	now func() time.Time
}

// New returns a Codec using now as its clock; nil means time.Now.
func New(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now}
}

// Now returns the codec clock's current time.
func (c *Codec) Now() time.Time { return c.now() }

// Wrap encodes data and stamps it with createdAt = now and
// expiresAt = now + ttl. A ttl of zero or less produces an entry that is
// already expired.
func (c *Codec) Wrap(key string, data any, ttl time.Duration) (models.CacheEntry, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("encode payload: %w", err)
	}
	created := c.now().UnixMilli()
	return models.CacheEntry{
		Key:       key,
		Data:      raw,
		CreatedAt: created,
		ExpiresAt: created + ttl.Milliseconds(),
	}, nil
}

// IsLive reports whether now <= expiresAt. Entries whose expiry is not after
// their creation never count as live.
func (c *Codec) IsLive(e models.CacheEntry) bool {
	if e.ExpiresAt <= e.CreatedAt {
		return false
	}
	return c.now().UnixMilli() <= e.ExpiresAt
}

// Encode serialises an entry for the store.
func Encode(e models.CacheEntry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return b, nil
}

// Decode parses stored bytes. Anything that does not look like an entry
// wraps ErrMalformedEntry.
func Decode(b []byte) (models.CacheEntry, error) {
	var e models.CacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return models.CacheEntry{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if e.CreatedAt == 0 || len(e.Data) == 0 {
		return models.CacheEntry{}, ErrMalformedEntry
	}
	return e, nil
}

// Unwrap decodes the entry payload into out.
func Unwrap(e models.CacheEntry, out any) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedEntry, err)
	}
	return nil
}
