package geocode

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached resolution. Found is false for a negative result.
type Entry struct {
	Place Place
	Found bool
}

// Cache stores resolutions keyed by the normalized original query.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (Entry, bool)
	Add(key string, e Entry)
	Len() int
}

// NewCache returns an unbounded MemoryCache when size is 0 and a bounded
// LRUCache otherwise.
func NewCache(size int) (Cache, error) {
	if size <= 0 {
		return NewMemoryCache(), nil
	}
	return NewLRUCache(size)
}

// MemoryCache is an unbounded map that lives for the process lifetime.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *MemoryCache) Add(key string, e Entry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LRUCache evicts the least recently used entry beyond its capacity.
type LRUCache struct {
	c *lru.Cache[string, Entry]
}

// NewLRUCache creates an LRUCache holding at most size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{c: c}, nil
}

func (c *LRUCache) Get(key string) (Entry, bool) { return c.c.Get(key) }
func (c *LRUCache) Add(key string, e Entry)      { c.c.Add(key, e) }
func (c *LRUCache) Len() int                     { return c.c.Len() }
