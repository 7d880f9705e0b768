// Package cache provides a content-addressed, time-bounded store of prior
// analysis results.
//
// Information Hiding:
// - Entry map and lock discipline hidden behind Lookup/Store/Sweep
// - Disk persistence format internalized; corrupt entries degrade to misses
// - Envelopes are cloned on the way out, never shared
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/model"
)

// LookupResult reports what a cache lookup found, recorded into envelope
// metadata so callers and tests can assert cache behavior.
type LookupResult string

const (
	Hit     LookupResult = "hit"
	Miss    LookupResult = "miss"
	Expired LookupResult = "expired"
)

// Options configures a Cache.
type Options struct {
	// Dir persists entries as JSON files when non-empty.
	Dir        string
	TTL        time.Duration
	MaxEntries int
}

type entry struct {
	envelope  *model.Envelope
	createdAt time.Time
	expiresAt time.Time
	hits      int
}

// Cache is safe for concurrent use by many in-flight requests. Entries are
// evicted oldest-created-first when capacity is exceeded; expiry is enforced
// on lookup and by sweeps.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	ttl        time.Duration
	maxEntries int
	dir        string
}

// New creates a cache. When opts.Dir is set, surviving entries from a prior
// run are loaded and expired ones discarded.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 100
	}
	c := &Cache{
		entries:    make(map[string]*entry),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		dir:        opts.Dir,
	}
	if c.dir != "" {
		c.loadFromDisk()
	}
	return c
}

// Lookup returns a copy of the cached envelope for fingerprint, if present
// and unexpired. Hit counts are tracked per entry; hits never append a
// cost-bearing usage record.
func (c *Cache) Lookup(fingerprint string) (*model.Envelope, LookupResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, Miss
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, fingerprint)
		c.removeFile(fingerprint)
		return nil, Expired
	}
	e.hits++
	return e.envelope.Clone(), Hit
}

// Store inserts an envelope under fingerprint with the given ttl (0 uses the
// cache default). Sweeps expired entries opportunistically, then evicts the
// oldest-created entry when the insert would exceed capacity.
func (c *Cache) Store(fingerprint string, envelope *model.Envelope, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(now)

	if _, exists := c.entries[fingerprint]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	e := &entry{
		envelope:  envelope.Clone(),
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	c.entries[fingerprint] = e
	c.writeFile(fingerprint, e)
}

// Sweep removes all expired entries and returns how many were evicted.
// Idempotent and safe to call concurrently with lookups.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(time.Now())
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Hits returns the hit count recorded for fingerprint.
func (c *Cache) Hits(fingerprint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fingerprint]; ok {
		return e.hits
	}
	return 0
}

// StartSweeper runs periodic sweeps until ctx is cancelled.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := c.Sweep(); evicted > 0 {
					logrus.WithField("evicted", evicted).Debug("cache sweep")
				}
			}
		}
	}()
}

func (c *Cache) sweepLocked(now time.Time) int {
	evicted := 0
	for fingerprint, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, fingerprint)
			c.removeFile(fingerprint)
			evicted++
		}
	}
	return evicted
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for fingerprint, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldestAt) {
			oldestKey = fingerprint
			oldestAt = e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.removeFile(oldestKey)
	}
}
