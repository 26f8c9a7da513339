package docindex

import (
	"sort"
	"sync"

	"github.com/google/btree"
)

// DocumentCache buffers pending additions and removals. Add and Remove
// report whether the buffer wants to be flushed.
type DocumentCache interface {
	Add(doc *IndexDocument) bool
	Remove(primaryKey string) bool
	// Drain returns the pending additions in primary-key order and the
	// pending removals, and empties the cache.
	Drain() (adds []*IndexDocument, removes []string)
	// Len returns the number of Add and Remove calls since the last Drain.
	Len() int
}

// pending orders buffered documents by primary key. There is at most one
// per key.
type pending struct {
	key string
	doc *IndexDocument
}

func (p pending) Less(than btree.Item) bool {
	return p.key < than.(pending).key
}

// MemoryCache buffers everything in memory and never asks for a flush.
//
// A later Add for a primary key replaces the buffered one, the same way it
// replaces a committed or spilled document once stored. Results therefore
// do not depend on when the buffer is drained.
type MemoryCache struct {
	mu      sync.Mutex
	tree    *btree.BTree
	removes map[string]struct{}
	ops     int
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		tree:    btree.New(16),
		removes: make(map[string]struct{}),
	}
}

// Add buffers doc in place of any buffered document with the same primary
// key and queues removal of what is already stored under it.
func (c *MemoryCache) Add(doc *IndexDocument) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tree.ReplaceOrInsert(pending{key: doc.PrimaryKey(), doc: doc})
	c.removes[doc.PrimaryKey()] = struct{}{}
	c.ops++
	return false
}

// Remove drops the buffered document with primaryKey and queues removal of
// the stored ones.
func (c *MemoryCache) Remove(primaryKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tree.Delete(pending{key: primaryKey})
	c.removes[primaryKey] = struct{}{}
	c.ops++
	return false
}

// Drain implements DocumentCache.
func (c *MemoryCache) Drain() ([]*IndexDocument, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	adds := make([]*IndexDocument, 0, c.tree.Len())
	c.tree.Ascend(func(i btree.Item) bool {
		adds = append(adds, i.(pending).doc)
		return true
	})
	removes := make([]string, 0, len(c.removes))
	for k := range c.removes {
		removes = append(removes, k)
	}
	sort.Strings(removes)

	c.tree.Clear(false)
	c.removes = make(map[string]struct{})
	c.ops = 0
	return adds, removes
}

// Len implements DocumentCache.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops
}

// ThresholdCache is a MemoryCache that asks for a flush once limit
// operations are pending.
type ThresholdCache struct {
	*MemoryCache
	limit int
}

// NewThresholdCache creates a ThresholdCache. A limit below one flushes on
// every operation.
func NewThresholdCache(limit int) *ThresholdCache {
	return &ThresholdCache{MemoryCache: NewMemoryCache(), limit: limit}
}

// Add implements DocumentCache.
func (c *ThresholdCache) Add(doc *IndexDocument) bool {
	c.MemoryCache.Add(doc)
	return c.Len() >= c.limit
}

// Remove implements DocumentCache.
func (c *ThresholdCache) Remove(primaryKey string) bool {
	c.MemoryCache.Remove(primaryKey)
	return c.Len() >= c.limit
}
