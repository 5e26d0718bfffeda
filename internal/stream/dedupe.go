package stream

// dedupeCache is a bounded recency cache of idempotency keys. When full,
// recording a new key evicts the oldest one, so at most capacity recent
// keys are remembered.
//
// Not safe for concurrent use; the subscriber's read loop is the only caller.
type dedupeCache struct {
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

// newDedupeCache creates a cache remembering the last capacity keys.
func newDedupeCache(capacity int) *dedupeCache {
	if capacity < 1 {
		capacity = 1
	}
	return &dedupeCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Seen records key and reports whether it was already present.
func (c *dedupeCache) Seen(key string) bool {
	if _, ok := c.seen[key]; ok {
		return true
	}

	if len(c.order) < c.capacity {
		c.order = append(c.order, key)
	} else {
		delete(c.seen, c.order[c.head])
		c.order[c.head] = key
		c.head = (c.head + 1) % c.capacity
	}
	c.seen[key] = struct{}{}
	return false
}

// Len returns the number of remembered keys.
func (c *dedupeCache) Len() int {
	return len(c.seen)
}
