// Package cache provides a bounded, thread-safe LRU cache whose entries
// expire after a per-entry TTL.
//
// Capacity caps memory use: once full, the least recently used entry is
// evicted on Put. Expired entries are dropped lazily when they are read or
// reach the back of the eviction list.
//
//	c := cache.New[string, struct{}](10_000)
//	c.Put("stripe:evt_1", struct{}{}, 72*time.Hour)
//	_, seen := c.Get("stripe:evt_1")
package cache
