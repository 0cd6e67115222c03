// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// lruCache is a thread-safe LRU cache with per-entry TTL.
//
// Description:
//
//	Fixed-size cache evicting the least recently used entry at capacity.
//	Entries also expire after the configured TTL so a transaction window
//	never outlives the chain by much. Uses container/list for O(1)
//	access and eviction.
//
// Thread Safety: all methods are safe for concurrent use.
type lruCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[K]*list.Element
	order    *list.List // Front = most recent, Back = least recent

	// now is the clock; tests substitute it to drive expiry.
	now func() time.Time

	// Stats (atomic for lock-free reads)
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// lruEntry holds the key-value pair and its expiry in the list.
type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// newLRUCache creates an LRU cache with the given capacity and TTL.
// A non-positive ttl disables expiry.
func newLRUCache[K comparable, V any](capacity int, ttl time.Duration) *lruCache[K, V] {
	if capacity <= 0 {
		capacity = 128
	}
	return &lruCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get retrieves a value and marks it most recently used. Expired entries
// are dropped on access and reported as misses.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
			c.removeElement(elem)
			c.misses.Add(1)
			var zero V
			return zero, false
		}
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return entry.value, true
	}

	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set adds or refreshes an entry, evicting the least recently used entry
// when the cache is at capacity.
func (c *lruCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	if c.order.Len() >= c.capacity {
		if elem := c.order.Back(); elem != nil {
			c.removeElement(elem)
			c.evictions.Add(1)
		}
	}

	elem := c.order.PushFront(&lruEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem
}

// Delete removes a key. Returns true when the key was present.
func (c *lruCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Len returns the number of entries, expired or not.
func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cache hit/miss counts since creation.
func (c *lruCache[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// removeElement removes an element from both the list and map.
// Caller must hold the lock.
func (c *lruCache[K, V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)
}
