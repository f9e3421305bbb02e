package cache

import "time"

// Entry is a cached payload.
type Entry struct {
	// Data is the serialized payload (JSON).
	Data []byte `json:"data"`

	// Expires is when the entry becomes stale. The zero value never expires,
	// which only the session layer accepts.
	Expires time.Time `json:"expires"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry wraps data in a non-expiring entry.
func NewEntry(data []byte) *Entry {
	return &Entry{Data: data, CachedAt: time.Now()}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	if e.Expires.IsZero() {
		return false
	}
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired or if the entry never expires.
func (e *Entry) TTL() time.Duration {
	if e.Expires.IsZero() {
		return 0
	}
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// WithTTL returns a copy of e expiring ttl from now.
func (e *Entry) WithTTL(ttl time.Duration) *Entry {
	cp := *e
	cp.Expires = time.Now().Add(ttl)
	return &cp
}
