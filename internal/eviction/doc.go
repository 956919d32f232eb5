/*
Package eviction implements the LRU eviction cache of the plasma store.

An object is a candidate for eviction exactly when it is sealed and has no
references. LRUCache holds the candidates ordered by recency, oldest first,
with their sizes:

	cache := eviction.NewLRUCache("objects", 1<<30)
	cache.Add(a, 10)
	cache.Add(b, 20)
	total, ids := cache.ChooseObjectsToEvict(15) // 30, [a b]

ChooseObjectsToEvict is advisory: the caller frees the objects and removes
them from the cache. LRUEvictionPolicy layers footprint-aware selection
(RequireSpace) and access pinning on top of the cache.

Neither type is synchronized; the object store owns them under its lock.
*/
package eviction
