package build

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// CacheKey identifies one compilation: the IR text and every setting that
// changes the generated code.
type CacheKey uint64

func (k CacheKey) String() string { return fmt.Sprintf("%016x", uint64(k)) }

// KeyFor hashes src together with the configuration fingerprint.
func KeyFor(src []byte, fingerprint string) CacheKey {
	d := xxhash.New()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(fingerprint)))
	d.Write(n[:])
	d.WriteString(fingerprint)
	d.Write(src)
	return CacheKey(d.Sum64())
}

// Artifact is the cached output of one compilation.
type Artifact struct {
	Asm    []byte
	Faults []string
}

// CacheStats exposes basic metrics.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Entries   int64
	Bytes     int64
	Evictions int64
}

// Cache is a thread-safe LRU cache with a max entry count.
type Cache struct {
	mu       sync.Mutex
	capacity int
	llHead   *lruNode
	llTail   *lruNode
	table    map[CacheKey]*lruNode
	stats    CacheStats
}

type lruNode struct {
	key  CacheKey
	val  Artifact
	size int64
	prev *lruNode
	next *lruNode
}

// NewCache creates a cache holding at most capacity artifacts. If
// capacity<=0, defaults to 64.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 64
	}
	return &Cache{capacity: capacity, table: make(map[CacheKey]*lruNode)}
}

func (c *Cache) detach(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if c.llHead == n {
		c.llHead = n.next
	}
	if c.llTail == n {
		c.llTail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *Cache) pushFront(n *lruNode) {
	n.next = c.llHead
	if c.llHead != nil {
		c.llHead.prev = n
	}
	c.llHead = n
	if c.llTail == nil {
		c.llTail = n
	}
}

func (c *Cache) evictIfNeeded() {
	for len(c.table) > c.capacity && c.llTail != nil {
		n := c.llTail
		c.detach(n)
		delete(c.table, n.key)
		c.stats.Evictions++
		c.stats.Bytes -= n.size
	}
	c.stats.Entries = int64(len(c.table))
}

// Get returns the artifact stored under key and marks it most recently used.
func (c *Cache) Get(key CacheKey) (Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.table[key]; ok {
		c.detach(n)
		c.pushFront(n)
		c.stats.Hits++
		return n.val, true
	}
	c.stats.Misses++
	return Artifact{}, false
}

// Put stores a under key, evicting the least recently used entry when full.
func (c *Cache) Put(key CacheKey, a Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := int64(len(a.Asm))
	if n, ok := c.table[key]; ok {
		c.stats.Bytes += size - n.size
		n.val, n.size = a, size
		c.detach(n)
		c.pushFront(n)
		return
	}
	n := &lruNode{key: key, val: a, size: size}
	c.pushFront(n)
	c.table[key] = n
	c.stats.Bytes += size
	c.evictIfNeeded()
}

// Invalidate drops key if present.
func (c *Cache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.table[key]; ok {
		c.detach(n)
		delete(c.table, key)
		c.stats.Bytes -= n.size
		c.stats.Entries = int64(len(c.table))
	}
}

func (c *Cache) Stats() CacheStats { c.mu.Lock(); defer c.mu.Unlock(); return c.stats }
