// Package cache provides a bounded LRU cache whose eviction threshold is
// decided by a pluggable policy and whose values are told when they leave.
package cache

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Evictable is a cached value that owns resources (open readers, file
// handles) which must be released when the cache drops it.
type Evictable interface {
	// Evicted is called exactly once, synchronously, while the cache lock is
	// held. Implementations must not call back into the cache.
	Evicted()
}

// EvictionPolicy decides whether the cache must drop its least recently used
// entry given the current number of entries.
type EvictionPolicy[K comparable, V any] interface {
	ShouldEvict(size int, oldestKey K, oldestValue V) bool
}

// PolicyFunc adapts a function to EvictionPolicy.
type PolicyFunc[K comparable, V any] func(size int, oldestKey K, oldestValue V) bool

// ShouldEvict implements EvictionPolicy.
func (f PolicyFunc[K, V]) ShouldEvict(size int, oldestKey K, oldestValue V) bool {
	return f(size, oldestKey, oldestValue)
}

// MaxEntries returns a policy that evicts while more than n entries are cached.
func MaxEntries[K comparable, V any](n int) EvictionPolicy[K, V] {
	return PolicyFunc[K, V](func(size int, _ K, _ V) bool {
		return size > n
	})
}

// LRUCache is a thread-safe least-recently-used cache. Recency is updated by
// Put and Get; after every Put the policy is consulted until it is satisfied.
type LRUCache[K comparable, V Evictable] struct {
	mu     sync.Mutex
	lru    *simplelru.LRU[K, V]
	policy EvictionPolicy[K, V]
}

// New creates an LRUCache governed by policy.
func New[K comparable, V Evictable](policy EvictionPolicy[K, V]) *LRUCache[K, V] {
	// Capacity is the policy's business; simplelru only keeps the order.
	l, err := simplelru.NewLRU[K, V](math.MaxInt, nil)
	if err != nil {
		panic(err)
	}
	return &LRUCache[K, V]{lru: l, policy: policy}
}

// Put inserts or replaces value under key and marks it most recently used.
// Replacing an existing key does not call Evicted on the previous value.
// It returns the values evicted to satisfy the policy, oldest first.
func (c *LRUCache[K, V]) Put(key K, value V) []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Add(key, value)

	var evicted []V
	for c.lru.Len() > 0 {
		oldestKey, oldestValue, _ := c.lru.GetOldest()
		if !c.policy.ShouldEvict(c.lru.Len(), oldestKey, oldestValue) {
			break
		}
		oldestValue.Evicted()
		c.lru.Remove(oldestKey)
		evicted = append(evicted, oldestValue)
	}
	return evicted
}

// Get returns the value for key and marks it most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Remove drops key without calling Evicted; the caller takes over the value.
func (c *LRUCache[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Peek(key)
	if ok {
		c.lru.Remove(key)
	}
	return v, ok
}

// Len returns the number of cached entries.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the cached keys from least to most recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Clear evicts every entry unconditionally, calling Evicted on each value,
// and returns the evicted values from least to most recently used.
func (c *LRUCache[K, V]) Clear() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.lru.Values()
	for _, v := range values {
		v.Evicted()
	}
	c.lru.Purge()
	return values
}
