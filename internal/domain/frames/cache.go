package frames

import (
	"container/list"
	"sync"
	"time"

	"github.com/okian/conjunct/internal/domain/orbit"
)

const defaultCacheSize = 4096

// RotationCache memoizes rotation matrices by instant. It is safe for
// concurrent use and evicts the least recently used entry when full.
type RotationCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	entries map[int64]*list.Element
}

type cacheEntry struct {
	key int64
	m   orbit.Matrix3
}

// NewRotationCache creates a cache holding up to size matrices.
func NewRotationCache(size int) *RotationCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &RotationCache{
		maxSize: size,
		order:   list.New(),
		entries: make(map[int64]*list.Element, size),
	}
}

// Get returns the matrix for t, computing it with fn on a miss.
func (c *RotationCache) Get(t time.Time, fn func(time.Time) orbit.Matrix3) orbit.Matrix3 {
	key := t.UnixNano()

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		m := el.Value.(*cacheEntry).m
		c.mu.Unlock()
		return m
	}
	c.mu.Unlock()

	m := fn(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return m
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, m: m})
	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return m
}

// Len returns the number of cached matrices.
func (c *RotationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
