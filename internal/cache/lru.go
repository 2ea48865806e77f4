package cache

import (
	"container/list"
	"sync"
	"time"
)

var _ Cache[int] = (*LRUCache[int])(nil)

// Stats counts lookups and removals since the cache was created.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
}

// LRUCache bounds entries by count and age. Lookups of expired entries
// count as misses and drop the entry.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
	stats   Stats
	// bumped by Delete so a fill that raced an invalidation is discarded
	versions map[string]uint64
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize:  maxSize,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		now:      time.Now,
		versions: make(map[string]uint64),
	}
}

// Get returns the live value for key and marks it most recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if c.now().After(item.expiresAt) {
		c.removeElement(elem)
		c.stats.Expired++
		c.stats.Misses++
		return zero, false
	}

	c.stats.Hits++
	c.lru.MoveToFront(elem)
	return item.data, true
}

// Set stores data under key with a fresh TTL, evicting from the back when full.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, data)
}

func (c *LRUCache[T]) setLocked(key string, data T) {
	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(item)
	for c.lru.Len() > c.maxSize {
		c.removeElement(c.lru.Back())
		c.stats.Evictions++
	}
}

// Delete removes a key from the cache and invalidates any fill in flight for it.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[key]++
	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

// Version returns the invalidation counter of key. Read it before loading a
// value and pass it to SetIfVersion.
func (c *LRUCache[T]) Version(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key]
}

// SetIfVersion stores data only if key was not deleted since version was read.
func (c *LRUCache[T]) SetIfVersion(key string, data T, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[key] != version {
		return false
	}
	c.setLocked(key, data)
	return true
}

// DeleteFunc removes all keys matching match and returns how many were removed.
func (c *LRUCache[T]) DeleteFunc(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.removeWhere(func(item *cacheItem[T]) bool { return match(item.key) })
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := c.removeWhere(func(item *cacheItem[T]) bool { return now.After(item.expiresAt) })
	c.stats.Expired += int64(n)
	return n
}

func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache[T]) removeWhere(match func(*cacheItem[T]) bool) int {
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if match(elem.Value.(*cacheItem[T])) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}
