// Package dedup guards a rendered list against rendering the same entity
// twice. The same id can arrive as an optimistic local append, as the
// realtime echo of that write, and again from a refetch.
package dedup

import "sync"

// SeenCache is the set of entity ids already appended to one scope's
// rendered list. It lives exactly as long as the scope: Reset is called
// when the scope key changes and nowhere else.
type SeenCache struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewSeenCache returns an empty cache.
func NewSeenCache() *SeenCache {
	return &SeenCache{ids: make(map[int64]struct{})}
}

// MarkSeen records id as rendered.
func (c *SeenCache) MarkSeen(id int64) {
	c.mu.Lock()
	c.ids[id] = struct{}{}
	c.mu.Unlock()
}

// IsSeen reports whether id was rendered in this scope.
func (c *SeenCache) IsSeen(id int64) bool {
	c.mu.Lock()
	_, ok := c.ids[id]
	c.mu.Unlock()
	return ok
}

// CheckAndMark marks id and reports whether it had been seen before.
// Callers use it to decide atomically between "new" and "duplicate".
func (c *SeenCache) CheckAndMark(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return true
	}
	c.ids[id] = struct{}{}
	return false
}

// Forget drops id, so a later insert with the same id renders again.
// Used when the entity is deleted.
func (c *SeenCache) Forget(id int64) {
	c.mu.Lock()
	delete(c.ids, id)
	c.mu.Unlock()
}

// Reset forgets every id. Called on scope change.
func (c *SeenCache) Reset() {
	c.mu.Lock()
	c.ids = make(map[int64]struct{})
	c.mu.Unlock()
}

// Len is the number of ids seen.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
