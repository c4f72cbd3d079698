package proc

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/jukebox/sys"
)

const (
	DefaultCacheTTL      = time.Hour
	DefaultCacheMaxSize  = 1000
	DefaultSweepInterval = 10 * time.Minute
)

type cacheEntry[T any] struct {
	value      T
	insertedAt time.Time
	seq        uint64
}

// Cache is a bounded key/value store with lazy TTL expiry.
// Keys are case-folded and trimmed before use.
type Cache[T any] struct {
	name    string
	ttl     time.Duration
	maxSize int

	mu      sync.Mutex
	entries map[string]cacheEntry[T]
	seq     uint64
	hits    uint64
	misses  uint64
}

// CacheStats is a point-in-time view of a cache.
type CacheStats struct {
	Name    string        `json:"name"`
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
	Hits    uint64        `json:"hits"`
	Misses  uint64        `json:"misses"`
}

func NewCache[T any](name string, ttl time.Duration, maxSize int) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultCacheMaxSize
	}
	return &Cache[T]{
		name:    name,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]cacheEntry[T]),
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (c *Cache[T]) expired(e cacheEntry[T], now time.Time) bool {
	return now.Sub(e.insertedAt) > c.ttl
}

// Get returns the cached value. An expired entry is deleted and reported as a miss.
func (c *Cache[T]) Get(key string) (T, bool) {
	key = normalizeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero T
		return zero, false
	}
	if c.expired(e, time.Now()) {
		delete(c.entries, key)
		c.misses++
		var zero T
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value, evicting the oldest entry first when the cache is full.
func (c *Cache[T]) Set(key string, value T) {
	key = normalizeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seq++
	c.entries[key] = cacheEntry[T]{value: value, insertedAt: time.Now(), seq: c.seq}
}

// evictOldestLocked removes the entry with the smallest insertion time.
// Equal times fall back to insertion order.
func (c *Cache[T]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    cacheEntry[T]
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.insertedAt.Before(oldest.insertedAt) ||
			(e.insertedAt.Equal(oldest.insertedAt) && e.seq < oldest.seq) {
			oldestKey, oldest, found = k, e, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

func (c *Cache[T]) Delete(key string) {
	key = normalizeKey(key)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[T]) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *Cache[T]) Sweep() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[T]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Name:    c.name,
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// --- Cache Manager ---

// CacheManager owns the two shared cache instances and their sweeper.
type CacheManager struct {
	Media   *Cache[Media]
	Spotify *Cache[SpotifyTrack]

	interval time.Duration
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCacheManager(ttl time.Duration, maxSize int, sweepInterval time.Duration) *CacheManager {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &CacheManager{
		Media:    NewCache[Media]("media", ttl, maxSize),
		Spotify:  NewCache[SpotifyTrack]("spotify", ttl, maxSize),
		interval: sweepInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run sweeps both caches on a fixed interval until ctx is done or Close is called.
func (m *CacheManager) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				sys.LogCache("Swept %d expired entries", n)
			}
		}
	}
}

// Sweep removes expired entries from both caches.
func (m *CacheManager) Sweep() int {
	return m.Media.Sweep() + m.Spotify.Sweep()
}

// ClearAll empties both caches immediately.
func (m *CacheManager) ClearAll() {
	m.Media.Clear()
	m.Spotify.Clear()
}

func (m *CacheManager) Stats() []CacheStats {
	return []CacheStats{m.Media.Stats(), m.Spotify.Stats()}
}

// Close stops the sweeper and clears both caches. It does not wait for a
// sweeper that was never started.
func (m *CacheManager) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.ClearAll()
}

// Done is closed once Run has returned.
func (m *CacheManager) Done() <-chan struct{} {
	return m.done
}
