package hilbert

import (
	"sync"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
)

// Cache memoizes BoxOf for one top prefix at a time. Asking for a box under
// a different top drops every entry computed for the previous one.
type Cache struct {
	mu    sync.Mutex
	top   prefix.Prefix
	boxes map[prefix.Prefix]Box

	hits, misses uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{boxes: make(map[prefix.Prefix]Box)}
}

// Box returns BoxOf(p, top), computing it at most once per top.
func (c *Cache) Box(p, top prefix.Prefix) Box {
	c.mu.Lock()
	defer c.mu.Unlock()

	if top != c.top {
		c.top = top
		clear(c.boxes)
	}
	if b, ok := c.boxes[p]; ok {
		c.hits++
		return b
	}
	c.misses++
	b := BoxOf(p, top)
	c.boxes[p] = b
	return b
}

// Reset drops all entries.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.boxes)
	c.top = prefix.Prefix{}
}

// Stats reports lookups served from memory and lookups computed.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached boxes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.boxes)
}
