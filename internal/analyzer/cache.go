package analyzer

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

// Digest identifies image bytes.
type Digest [32]byte

// DigestOf hashes image bytes with BLAKE3.
func DigestOf(image []byte) Digest {
	return Digest(blake3.Sum256(image))
}

// Cache is a bounded LRU of analysis results keyed by image digest.
// A nil Cache, or one created with max <= 0, stores nothing.
type Cache struct {
	lru *lru.Cache[Digest, Result]
}

// NewCache creates a cache holding at most max results. max <= 0 disables it.
func NewCache(max int) *Cache {
	if max <= 0 {
		return &Cache{}
	}
	l, err := lru.New[Digest, Result](max)
	if err != nil {
		return &Cache{}
	}
	return &Cache{lru: l}
}

// Get returns a copy of the cached result for key.
func (c *Cache) Get(key Digest) (*Result, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	r, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return &r, true
}

// Put stores r under key, evicting the least recently used entry when full.
func (c *Cache) Put(key Digest, r *Result) {
	if c == nil || c.lru == nil || r == nil {
		return
	}
	c.lru.Add(key, *r)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
