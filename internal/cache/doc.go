// Package cache provides a generic, thread-safe least recently used map.
//
// A capacity of 0 disables eviction:
//
//	c := cache.New[string, []byte](64)
//	c.Set("id", data)
//	data, ok := c.Get("id")
//
// Get refreshes an entry's recency; Peek does not. An optional eviction
// callback runs for entries dropped to make room, outside of Delete and
// Clear.
package cache
