package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrUnserializable indicates a body could not be serialized for caching.
var ErrUnserializable = errors.New("cache: body is not serializable")

// Entry represents a cached read response.
// Entries are never modified after they are stored; a refresh replaces the entry.
type Entry struct {
	// Key is the composite cache key (path, query, identity)
	Key string

	// Data is the serialized JSON body
	Data []byte

	// ETag is the quoted fingerprint of Data
	ETag string

	// CreatedAt is when the entry was stored
	CreatedAt time.Time

	// ExpiresAt is when the entry becomes stale
	ExpiresAt time.Time
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return e.ExpiredAt(time.Now())
}

// ExpiredAt reports whether the entry is stale at the given instant.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	return e.RemainingAt(time.Now())
}

// RemainingAt returns the freshness left at the given instant, never negative.
func (e *Entry) RemainingAt(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Fingerprint returns the quoted ETag for a serialized body.
// xxhash64 is fast and stable within and across process runs.
func Fingerprint(data []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
}

// Serialize converts a response body to the compact JSON bytes that get cached.
// Byte slices and json.RawMessage are treated as already-encoded JSON and validated.
func Serialize(body any) ([]byte, error) {
	var raw []byte
	switch b := body.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil body", ErrUnserializable)
	case json.RawMessage:
		raw = b
	case []byte:
		raw = b
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnserializable, err)
		}
		return data, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnserializable, err)
	}
	return buf.Bytes(), nil
}
