package eviction

import (
	"fmt"
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/plasmastore/plasmastore/pkg/types"
)

// LRUCache is a capacity-accounted, recency-ordered set of (object, size)
// pairs. It only tracks membership; it never frees memory itself.
//
// LRUCache is not safe for concurrent use. The object store serializes every
// call under its own lock.
type LRUCache struct {
	name             string
	originalCapacity int64
	capacity         int64
	usedCapacity     int64

	numEvictionsTotal int64
	bytesEvictedTotal int64

	entries *simplelru.LRU[types.ObjectID, int64]
}

// CacheStats represents eviction cache statistics
type CacheStats struct {
	Name              string  `json:"name"`
	Entries           int     `json:"entries"`
	Capacity          int64   `json:"capacity"`
	OriginalCapacity  int64   `json:"original_capacity"`
	UsedCapacity      int64   `json:"used_capacity"`
	NumEvictionsTotal int64   `json:"num_evictions_total"`
	BytesEvictedTotal int64   `json:"bytes_evicted_total"`
	Utilization       float64 `json:"utilization"`
}

// NewLRUCache creates an empty cache with the given byte capacity.
func NewLRUCache(name string, capacity int64) *LRUCache {
	// The entry bound is the capacity in bytes, not the number of keys, so the
	// underlying list is never allowed to drop entries on its own.
	entries, err := simplelru.NewLRU[types.ObjectID, int64](math.MaxInt, nil)
	if err != nil {
		panic(fmt.Sprintf("eviction: cannot create lru list: %v", err))
	}

	return &LRUCache{
		name:             name,
		originalCapacity: capacity,
		capacity:         capacity,
		entries:          entries,
	}
}

// Add inserts id at the most recently used end. An existing entry for id is
// replaced so its size is never double counted.
func (c *LRUCache) Add(id types.ObjectID, size int64) {
	if c.entries.Contains(id) {
		c.Remove(id)
	}
	c.entries.Add(id, size)
	c.usedCapacity += size
}

// Remove drops id and returns its size, or 0 when it was not present.
func (c *LRUCache) Remove(id types.ObjectID) int64 {
	size, ok := c.entries.Peek(id)
	if !ok {
		return 0
	}
	c.entries.Remove(id)
	c.usedCapacity -= size
	return size
}

// ChooseObjectsToEvict walks entries oldest first and collects keys until
// their sizes add up to at least bytesNeeded or the cache is exhausted. It
// does not remove anything.
func (c *LRUCache) ChooseObjectsToEvict(bytesNeeded int64) (int64, []types.ObjectID) {
	return c.ChooseObjectsToEvictFunc(bytesNeeded, nil)
}

// ChooseObjectsToEvictFunc is ChooseObjectsToEvict restricted to the keys
// accepted by eligible. A nil eligible accepts every key.
func (c *LRUCache) ChooseObjectsToEvictFunc(bytesNeeded int64, eligible func(types.ObjectID) bool) (int64, []types.ObjectID) {
	if bytesNeeded <= 0 {
		return 0, nil
	}

	var (
		total  int64
		chosen []types.ObjectID
	)
	for _, id := range c.entries.Keys() {
		if eligible != nil && !eligible(id) {
			continue
		}
		size, _ := c.entries.Peek(id)
		chosen = append(chosen, id)
		total += size
		if total >= bytesNeeded {
			break
		}
	}
	return total, chosen
}

// AdjustCapacity shifts the current capacity by delta. The original capacity
// is unaffected.
func (c *LRUCache) AdjustCapacity(delta int64) {
	c.capacity += delta
}

// Name returns the cache name.
func (c *LRUCache) Name() string { return c.name }

// Capacity returns the current capacity.
func (c *LRUCache) Capacity() int64 { return c.capacity }

// OriginalCapacity returns the capacity the cache was created with.
func (c *LRUCache) OriginalCapacity() int64 { return c.originalCapacity }

// UsedCapacity returns the summed size of all entries.
func (c *LRUCache) UsedCapacity() int64 { return c.usedCapacity }

// RemainingCapacity returns capacity minus used capacity. It is negative when
// the cache is over-committed.
func (c *LRUCache) RemainingCapacity() int64 { return c.capacity - c.usedCapacity }

// Exists reports whether id is in the cache.
func (c *LRUCache) Exists(id types.ObjectID) bool { return c.entries.Contains(id) }

// Size returns the number of entries.
func (c *LRUCache) Size() int { return c.entries.Len() }

// IsEmpty reports whether the cache has no entries.
func (c *LRUCache) IsEmpty() bool { return c.entries.Len() == 0 }

// Keys returns every key, oldest first.
func (c *LRUCache) Keys() []types.ObjectID { return c.entries.Keys() }

// Foreach visits entries oldest first.
func (c *LRUCache) Foreach(visit func(id types.ObjectID, size int64)) {
	for _, id := range c.entries.Keys() {
		size, _ := c.entries.Peek(id)
		visit(id, size)
	}
}

// RecordEviction adds to the lifetime eviction counters.
func (c *LRUCache) RecordEviction(objects int, bytes int64) {
	c.numEvictionsTotal += int64(objects)
	c.bytesEvictedTotal += bytes
}

// NumEvictionsTotal returns the number of objects ever evicted.
func (c *LRUCache) NumEvictionsTotal() int64 { return c.numEvictionsTotal }

// BytesEvictedTotal returns the number of bytes ever evicted.
func (c *LRUCache) BytesEvictedTotal() int64 { return c.bytesEvictedTotal }

// Stats returns current cache statistics
func (c *LRUCache) Stats() CacheStats {
	stats := CacheStats{
		Name:              c.name,
		Entries:           c.entries.Len(),
		Capacity:          c.capacity,
		OriginalCapacity:  c.originalCapacity,
		UsedCapacity:      c.usedCapacity,
		NumEvictionsTotal: c.numEvictionsTotal,
		BytesEvictedTotal: c.bytesEvictedTotal,
	}
	if c.capacity > 0 {
		stats.Utilization = float64(c.usedCapacity) / float64(c.capacity)
	}
	return stats
}

// DebugString summarizes the cache on one line.
func (c *LRUCache) DebugString() string {
	return fmt.Sprintf("LRUCache(name=%s, capacity=%d, used=%d, original=%d, entries=%d, evictions=%d, bytes_evicted=%d)",
		c.name, c.capacity, c.usedCapacity, c.originalCapacity, c.entries.Len(),
		c.numEvictionsTotal, c.bytesEvictedTotal)
}
