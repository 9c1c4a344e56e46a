package content

import (
	"sort"
	"sync"
	"time"
)

// RootKey is the cache key of the top-level exam list.
const RootKey int64 = 0

type cacheEntry[T any] struct {
	children []T
	loadedAt time.Time
}

// EntityCache maps a parent id to its loaded children. A missing entry and a
// loaded empty entry are different states: Get reports the first with
// ok=false and the second with ok=true and a zero-length slice.
type EntityCache[T any] struct {
	mu      sync.RWMutex
	entries map[int64]cacheEntry[T]
	maxAge  time.Duration
	now     func() time.Time
}

type CacheOption func(*cacheConfig)

type cacheConfig struct {
	maxAge time.Duration
	now    func() time.Time
}

// WithMaxAge makes entries older than d read as absent. Zero disables expiry.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *cacheConfig) { c.maxAge = d }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) CacheOption {
	return func(c *cacheConfig) { c.now = now }
}

func NewEntityCache[T any](opts ...CacheOption) *EntityCache[T] {
	cfg := cacheConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &EntityCache[T]{
		entries: make(map[int64]cacheEntry[T]),
		maxAge:  cfg.maxAge,
		now:     cfg.now,
	}
}

func (c *EntityCache[T]) Get(key int64) ([]T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return nil, false
	}
	out := make([]T, len(e.children))
	copy(out, e.children)
	return out, true
}

// Set replaces the entry for key wholesale. A nil slice is stored as loaded
// empty.
func (c *EntityCache[T]) Set(key int64, children []T) {
	stored := make([]T, len(children))
	copy(stored, children)

	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{children: stored, loadedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops the entry for key. It does not fetch.
func (c *EntityCache[T]) Invalidate(key int64) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *EntityCache[T]) Clear() {
	c.mu.Lock()
	c.entries = make(map[int64]cacheEntry[T])
	c.mu.Unlock()
}

// Keys returns the keys of live entries in ascending order.
func (c *EntityCache[T]) Keys() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]int64, 0, len(c.entries))
	for k, e := range c.entries {
		if c.expired(e) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Find returns the first cached child matching fn along with its key.
func (c *EntityCache[T]) Find(fn func(T) bool) (T, int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, e := range c.entries {
		if c.expired(e) {
			continue
		}
		for _, child := range e.children {
			if fn(child) {
				return child, k, true
			}
		}
	}
	var zero T
	return zero, 0, false
}

func (c *EntityCache[T]) expired(e cacheEntry[T]) bool {
	return c.maxAge > 0 && c.now().Sub(e.loadedAt) > c.maxAge
}
