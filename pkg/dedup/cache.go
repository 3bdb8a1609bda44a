// Package dedup suppresses events that arrive more than once within a
// short window.
//
// The server occasionally delivers the same notification twice, for
// example once plainly and once inside a compressed batch. Handlers build
// a fingerprint from fields that identify the event and ask the cache
// whether it has been seen recently:
//
//	cache := dedup.New()
//	fp := dedup.Fingerprint("danmaku", d.Timestamp, d.UID, d.Msg)
//	if cache.IsDuplicate(fp, dedup.DefaultWindow) {
//	    return
//	}
package dedup

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWindow is the suppression window used by the default handlers.
	DefaultWindow = 3 * time.Second

	// HighWater is the entry count above which expired entries are swept.
	HighWater = 1000
)

// Cache records when each fingerprint was last seen. It is safe for
// concurrent use. The zero value is not usable; call New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsDuplicate reports whether fp was recorded strictly less than window
// ago. If it was not, fp is recorded with the current time.
//
// Once the cache holds more than HighWater entries, every entry older than
// window is evicted. This bounds memory in the common case where all
// callers use the same window; it is not an LRU.
func (c *Cache) IsDuplicate(fp string, window time.Duration) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.entries[fp]; ok && now.Sub(last) < window {
		return true
	}
	c.entries[fp] = now

	if len(c.entries) > HighWater {
		expire := now.Add(-window)
		for k, t := range c.entries {
			if t.Before(expire) {
				delete(c.entries, k)
			}
		}
	}
	return false
}

// Len returns the number of recorded fingerprints, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fingerprint joins parts with "_".
func Fingerprint(parts ...any) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('_')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
