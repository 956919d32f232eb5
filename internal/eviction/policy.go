package eviction

import (
	"fmt"

	"github.com/plasmastore/plasmastore/pkg/types"
)

// RequireSpace reclaims at least FootprintLimit/MinEvictionDivisor bytes
// whenever it has to evict at all, so a stream of small creations does not
// evict one object at a time.
const MinEvictionDivisor = 5

// ObjectSizer reports the size of a live object.
type ObjectSizer interface {
	ObjectSize(id types.ObjectID) (int64, bool)
}

// PoolTracker is implemented by object sources that know which pool backs
// an object. RequireSpace only reclaims primary pool objects from such a
// source, since freeing a fallback object leaves the primary pool as full.
type PoolTracker interface {
	InFallbackPool(id types.ObjectID) bool
}

// PoolView is the part of the allocator the policy reads.
type PoolView interface {
	PrimaryAllocated() int64
	FootprintLimit() int64
}

// LRUEvictionPolicy decides which evictable objects to reclaim. Objects enter
// the cache when they become evictable and are pinned while in use.
//
// Like LRUCache it is not safe for concurrent use.
type LRUEvictionPolicy struct {
	cache   *LRUCache
	objects ObjectSizer
	pool    PoolView

	pinned      map[types.ObjectID]int64
	pinnedBytes int64
}

// NewLRUEvictionPolicy creates a policy over a cache of the given capacity.
func NewLRUEvictionPolicy(objects ObjectSizer, pool PoolView, capacity int64) *LRUEvictionPolicy {
	return &LRUEvictionPolicy{
		cache:   NewLRUCache("eviction_cache", capacity),
		objects: objects,
		pool:    pool,
		pinned:  make(map[types.ObjectID]int64),
	}
}

// Cache exposes the underlying LRU cache.
func (p *LRUEvictionPolicy) Cache() *LRUCache { return p.cache }

// ObjectCreated makes a newly evictable object a candidate.
func (p *LRUEvictionPolicy) ObjectCreated(id types.ObjectID) {
	if size, ok := p.objects.ObjectSize(id); ok {
		p.cache.Add(id, size)
	}
}

// RequireSpace selects and removes eviction candidates so that size more
// bytes fit under the footprint limit. When eviction is needed at least a
// fifth of the footprint limit is selected. The returned remainder is the
// number of bytes still over the limit after the chosen objects are freed;
// a value <= 0 means the request fits.
func (p *LRUEvictionPolicy) RequireSpace(size int64) (int64, []types.ObjectID) {
	limit := p.pool.FootprintLimit()
	over := p.pool.PrimaryAllocated() + size - limit
	if over <= 0 {
		return over, nil
	}

	toFree := over
	if minimum := limit / MinEvictionDivisor; minimum > toFree {
		toFree = minimum
	}

	var primary func(types.ObjectID) bool
	if tracker, ok := p.objects.(PoolTracker); ok {
		primary = func(id types.ObjectID) bool { return !tracker.InFallbackPool(id) }
	}
	evicted, chosen := p.cache.ChooseObjectsToEvictFunc(toFree, primary)
	for _, id := range chosen {
		p.cache.Remove(id)
	}
	return over - evicted, chosen
}

// BeginObjectAccess pins id, removing it from the candidates.
func (p *LRUEvictionPolicy) BeginObjectAccess(id types.ObjectID) {
	if !p.cache.Exists(id) {
		return
	}
	size := p.cache.Remove(id)
	p.pinned[id] = size
	p.pinnedBytes += size
}

// EndObjectAccess unpins id and makes it a candidate again.
func (p *LRUEvictionPolicy) EndObjectAccess(id types.ObjectID) {
	p.unpin(id)
	p.ObjectCreated(id)
}

// ChooseObjectsToEvict is LRUCache.ChooseObjectsToEvict on the candidates.
func (p *LRUEvictionPolicy) ChooseObjectsToEvict(bytesNeeded int64) (int64, []types.ObjectID) {
	return p.cache.ChooseObjectsToEvict(bytesNeeded)
}

// RemoveObject forgets id entirely.
func (p *LRUEvictionPolicy) RemoveObject(id types.ObjectID) {
	p.cache.Remove(id)
	p.unpin(id)
}

// IsObjectEvictable reports whether id is a candidate.
func (p *LRUEvictionPolicy) IsObjectEvictable(id types.ObjectID) bool {
	return p.cache.Exists(id)
}

// PinnedBytes returns the size of every object pinned through
// BeginObjectAccess and not yet released.
func (p *LRUEvictionPolicy) PinnedBytes() int64 { return p.pinnedBytes }

func (p *LRUEvictionPolicy) unpin(id types.ObjectID) {
	if size, ok := p.pinned[id]; ok {
		delete(p.pinned, id)
		p.pinnedBytes -= size
	}
}

// DebugString summarizes the policy on one line.
func (p *LRUEvictionPolicy) DebugString() string {
	return fmt.Sprintf("EvictionPolicy(pinned=%d, cache=%s)", p.pinnedBytes, p.cache.DebugString())
}
