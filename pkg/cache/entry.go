// Package cache provides a Redis-backed read-through cache for registry
// packument responses. Packuments carry no reliable cache headers, so entries
// expire on a fixed TTL chosen at write time.
package cache

import (
	"time"
)

// Entry represents a cached packument response.
type Entry struct {
	// Body is the raw response body.
	Body []byte `json:"body"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
